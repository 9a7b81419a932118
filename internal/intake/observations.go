package intake

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/model"
)

// ReadObservations decodes a JSON array of price observations. Field
// validation happens at ingest.
func ReadObservations(ctx context.Context, r io.Reader) ([]model.PriceObservation, error) {
	return collect(DecodeJSONArray[model.PriceObservation](ctx, r))
}

// ReadObservationsFile reads a JSON observation batch from path.
func ReadObservationsFile(ctx context.Context, path string) ([]model.PriceObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadObservations(ctx, f)
}
