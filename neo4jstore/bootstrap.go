package neo4jstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// BootstrapDatabase prepares the named database to store asset graphs.
//
// It creates the database when missing and makes the content-address of every
// asset label a node key, so that concurrent writers merging the same asset
// cannot duplicate it. Bootstrapping an existing database is harmless.
func BootstrapDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if err := createDatabase(ctx, d, name); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: name})
	defer func() {
		if err := s.Close(ctx); err != nil {
			component.Logger(ctx).Error("Failed to close neo4j session", "error", err, "neo4j.database", name)
		}
	}()

	_, err := s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, l := range Labels() {
			query := `CREATE CONSTRAINT IF NOT EXISTS FOR (n:` + l + `) REQUIRE n._contentAddress IS NODE KEY`
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return nil, fmt.Errorf("constrain %s: %w", l, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j execute: %w", err)
	}
	component.Logger(ctx).Info("Neo4j database bootstrapped", "neo4j.database", name)
	return nil
}

// createDatabase panics on names Neo4j reserves for itself: they are a
// configuration mistake, not a runtime condition.
func createDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	switch {
	case name == "":
		panic("neo4jstore: database name must not be empty")
	case name == "neo4j":
		panic("neo4jstore: the default database 'neo4j' is reserved")
	case strings.HasPrefix(name, "system"), strings.HasPrefix(name, "_"):
		panic(fmt.Sprintf("neo4jstore: database name %q is reserved", name))
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := s.Close(ctx); err != nil {
			component.Logger(ctx).Error("Failed to close neo4j session", "error", err)
		}
	}()

	result, err := s.Run(ctx, "CREATE DATABASE $name IF NOT EXISTS WAIT", map[string]any{"name": name})
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
