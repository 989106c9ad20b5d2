package twin

import (
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"

	"github.com/go-digitaltwin/cabintwin"
)

// ReadingsInterest is the name of the pubsub interest a deployed twin consumes
// readings from.
const ReadingsInterest = "cabintwin.readings"

// Component describes the deployment of a twin as a component: it links the
// readings interest and observes every reading it receives, logging the
// anomalies they raise.
var Component = component.Descriptor{
	Name:      "cabintwin",
	Doc:       "Digital twin of a truck cabin sun visor: life estimate and anomaly detection from streamed readings.",
	Bootstrap: bootstrap,
	Interests: []string{ReadingsInterest},
}

func bootstrap(l *component.L, linker component.Linker, _ any) error {
	logger := component.Logger(l.Context())

	logger.Debug("Opening interest subscription...", slog.String("topic-name", ReadingsInterest))
	readings, err := linker.LinkInterest(l.GraceContext(), ReadingsInterest)
	if err != nil {
		return fmt.Errorf("open interest %q: %w", ReadingsInterest, err)
	}
	l.CleanupBackground(readings.Shutdown)
	logger.Info("Interest subscription opened successfully")

	t, err := New(DefaultOptions())
	if err != nil {
		return fmt.Errorf("new twin: %w", err)
	}
	l.Fork("observe readings", cabintwin.NewReadingSource(readings).Stream(t.Handler(nil)))
	return nil
}
