// Package neo4jstore persists asset graphs and the life of their parts in a
// Neo4j database.
//
// Every asset is a node labelled after its Go type and keyed by its content
// address (the `_contentAddress` property). Properties starting with an
// underscore belong to this package; the rest mirror the asset's fields. Edges
// of an Assembly become CONTAINS relationships.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// ErrUnknownPart is returned when a part was never saved as part of an
// assembly.
var ErrUnknownPart = errors.New("neo4jstore: unknown part")

// ErrNoLife is returned by LifeOf for a part whose life was never recorded.
var ErrNoLife = errors.New("neo4jstore: life not recorded")

// Labels returns the node labels of every asset type, in hierarchy order.
func Labels() []string {
	return []string{"Truck", "Cabin", "Part", "Sensor"}
}

// Store reads and writes a single Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New returns a Store over the named database. The database should have been
// prepared with BootstrapDatabase.
func New(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

// SaveAssembly merges every node and edge of the assembly into the graph, in a
// single transaction. Saving the same assembly twice leaves the graph as it
// was, apart from modification timestamps.
func (s *Store) SaveAssembly(ctx context.Context, a cabintwin.Assembly) (err error) {
	ctx, span := tracer.Start(ctx, "SaveAssembly", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("assembly.id", a.AssemblyID()),
	))
	defer span.End()
	defer func(start time.Time) {
		measureWrite(ctx, "save_assembly", err == nil, time.Since(start))
	}(time.Now())

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer s.closeSession(ctx, session)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, v := range a.Nodes() {
			if err := mergeNode(ctx, tx, v); err != nil {
				return nil, err
			}
		}
		var err error
		a.VisitEdges(func(from, to cabintwin.Value) bool {
			err = mergeEdge(ctx, tx, from, to)
			return err == nil
		})
		return nil, err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("neo4j execute: %w", err)
	}
	component.Logger(ctx).Debug("Assembly saved", "neo4j.database", s.database, "assembly", a.AssemblyID(), "nodes", len(a.Nodes()))
	return nil
}

func mergeNode(ctx context.Context, tx neo4j.ManagedTransaction, v cabintwin.Value) error {
	n, err := formatNode(v)
	if err != nil {
		return err
	}
	result, err := tx.Run(ctx, `
		MERGE (n:`+n.label+` {_contentAddress: $ca})
		ON CREATE SET n._created_at = datetime()
		SET n += $props, n._last_modified = datetime()
		RETURN count(n) AS nodes
	`, map[string]any{"ca": n.contentAddress, "props": n.props})
	if err != nil {
		return fmt.Errorf("run cypher: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("query single result: %w", err)
	}
	nodes, err := getRecordProperty[int64](record, "nodes")
	if err != nil {
		return fmt.Errorf("get nodes: %w", err)
	}
	if nodes != 1 {
		panicWithCorruptedGraph(ctx, fmt.Sprintf("merge of %v touched %d nodes instead of 1", v, nodes))
	}
	return nil
}

func mergeEdge(ctx context.Context, tx neo4j.ManagedTransaction, from, to cabintwin.Value) error {
	src, err := formatNode(from)
	if err != nil {
		return fmt.Errorf("format 'from' node: %w", err)
	}
	dst, err := formatNode(to)
	if err != nil {
		return fmt.Errorf("format 'to' node: %w", err)
	}
	result, err := tx.Run(ctx, `
		MATCH (s:`+src.label+` {_contentAddress: $from})
		MATCH (d:`+dst.label+` {_contentAddress: $to})
		MERGE (s)-[e:CONTAINS]->(d)
		ON CREATE SET e._created_at = datetime()
		RETURN count(e) AS edges
	`, map[string]any{"from": src.contentAddress, "to": dst.contentAddress})
	if err != nil {
		return fmt.Errorf("run cypher: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("query single result: %w", err)
	}
	edges, err := getRecordProperty[int64](record, "edges")
	if err != nil {
		return fmt.Errorf("get edges: %w", err)
	}
	// Both ends were merged earlier in the same transaction.
	if edges != 1 {
		panicWithCorruptedGraph(ctx, fmt.Sprintf("edge %v -> %v merged %d times instead of 1", from, to, edges))
	}
	return nil
}

// RecordLife stores the latest life estimate on the part's node.
func (s *Store) RecordLife(ctx context.Context, part cabintwin.Part, p lifemodel.Point) (err error) {
	ctx, span := tracer.Start(ctx, "RecordLife", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("part", part),
	))
	defer span.End()
	defer func(start time.Time) {
		measureWrite(ctx, "record_life", err == nil, time.Since(start))
	}(time.Now())

	ca, err := contentAddressOf(part)
	if err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer s.closeSession(ctx, session)

	nodes, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (int64, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Part {_contentAddress: $ca})
			SET n.damage_cumulative = $damage,
			    n.life_used_percent = $used,
			    n.life_remaining_percent = $remaining,
			    n.life_updated_at = $at,
			    n._last_modified = datetime()
			RETURN count(n) AS nodes
		`, map[string]any{
			"ca":        ca,
			"damage":    p.DamageCumulative,
			"used":      p.LifeUsedPercent,
			"remaining": p.LifeRemainingPercent,
			"at":        p.Timestamp.UTC(),
		})
		if err != nil {
			return 0, fmt.Errorf("run cypher: %w", err)
		}
		record, err := result.Single(ctx)
		if err != nil {
			return 0, fmt.Errorf("query single result: %w", err)
		}
		return getRecordProperty[int64](record, "nodes")
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("neo4j execute: %w", err)
	}
	if nodes == 0 {
		return fmt.Errorf("%w: %v", ErrUnknownPart, part)
	}
	return nil
}

// LifeOf returns the life estimate last recorded for the part. Only the
// cumulative fields of the returned Point are populated.
func (s *Store) LifeOf(ctx context.Context, part cabintwin.Part) (lifemodel.Point, error) {
	ctx, span := tracer.Start(ctx, "LifeOf", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("part", part),
	))
	defer span.End()

	ca, err := contentAddressOf(part)
	if err != nil {
		return lifemodel.Point{}, err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer s.closeSession(ctx, session)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Part {_contentAddress: $ca})
			RETURN n.damage_cumulative AS damage,
			       n.life_used_percent AS used,
			       n.life_remaining_percent AS remaining,
			       n.life_updated_at AS at
		`, map[string]any{"ca": ca})
		if err != nil {
			return nil, fmt.Errorf("run cypher: %w", err)
		}
		return result.Collect(ctx)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return lifemodel.Point{}, fmt.Errorf("neo4j execute: %w", err)
	}
	if len(records) == 0 {
		return lifemodel.Point{}, fmt.Errorf("%w: %v", ErrUnknownPart, part)
	}
	record := records[0]
	if v, _ := record.Get("at"); v == nil {
		return lifemodel.Point{}, fmt.Errorf("%w: %v", ErrNoLife, part)
	}
	return parseLife(record)
}

func parseLife(record *neo4j.Record) (p lifemodel.Point, err error) {
	if p.DamageCumulative, err = getRecordProperty[float64](record, "damage"); err != nil {
		return p, fmt.Errorf("get damage: %w", err)
	}
	if p.LifeUsedPercent, err = getRecordProperty[float64](record, "used"); err != nil {
		return p, fmt.Errorf("get used: %w", err)
	}
	if p.LifeRemainingPercent, err = getRecordProperty[float64](record, "remaining"); err != nil {
		return p, fmt.Errorf("get remaining: %w", err)
	}
	at, err := getRecordProperty[time.Time](record, "at")
	if err != nil {
		return p, fmt.Errorf("get at: %w", err)
	}
	p.Timestamp = at.UTC()
	return p, nil
}

func (s *Store) closeSession(ctx context.Context, session neo4j.SessionWithContext) {
	if err := session.Close(ctx); err != nil {
		component.Logger(ctx).Error("Failed to close neo4j session", "error", err, "neo4j.database", s.database)
	}
}

// A graphNode is the form of an asset stored in the graph.
type graphNode struct {
	label          string
	contentAddress string
	props          map[string]any
}

func formatNode(v cabintwin.Value) (graphNode, error) {
	ca, err := contentAddressOf(v)
	if err != nil {
		return graphNode{}, err
	}
	n := graphNode{contentAddress: ca}
	switch v := v.(type) {
	case cabintwin.Truck:
		n.label = "Truck"
		n.props = map[string]any{"vin": v.VIN}
	case cabintwin.Cabin:
		n.label = "Cabin"
		n.props = map[string]any{"vin": v.VIN, "position": v.Position}
	case cabintwin.Part:
		n.label = "Part"
		n.props = map[string]any{"vin": v.VIN, "name": v.Name, "material": v.Material}
	case cabintwin.Sensor:
		n.label = "Sensor"
		n.props = map[string]any{"vin": v.VIN, "part": v.Part, "channel": string(v.Channel), "unit": v.Unit}
	default:
		return graphNode{}, fmt.Errorf("unsupported node type %T", v)
	}
	return n, nil
}

func contentAddressOf(v cabintwin.Value) (string, error) {
	h, err := cabintwin.ContentAddress(v)
	if err != nil {
		return "", fmt.Errorf("content address: %w", err)
	}
	text, err := h.MarshalText()
	if err != nil {
		return "", fmt.Errorf("marshal content address: %w", err)
	}
	return string(text), nil
}

// When the graph holds duplicates of a key-constrained asset it can no longer
// be trusted, so all operations stop.
func panicWithCorruptedGraph(ctx context.Context, reason string) {
	component.Logger(ctx).ErrorContext(ctx, "Encountered a corrupted asset graph", "error", reason)
	trace.SpanFromContext(ctx).SetStatus(codes.Error, reason)
	panic(fmt.Errorf("neo4j asset graph is corrupted: %v", reason))
}

var errPropertyNotFound = errors.New("property not found")

// An unexpectedPropertyTypeError means a Cypher query and the code reading its
// records disagree.
type unexpectedPropertyTypeError struct {
	Type reflect.Type
}

func (e unexpectedPropertyTypeError) Error() string {
	return fmt.Sprintf("unexpected property type %v", e.Type)
}

type recordProperty interface {
	int64 | float64 | string | time.Time
}

func getRecordProperty[T recordProperty](record *neo4j.Record, key string) (value T, err error) {
	prop, exists := record.Get(key)
	if !exists {
		return value, errPropertyNotFound
	}
	v, ok := prop.(T)
	if !ok {
		return value, unexpectedPropertyTypeError{Type: reflect.TypeOf(prop)}
	}
	return v, nil
}
