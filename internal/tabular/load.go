package tabular

import (
	"context"
	"fmt"
)

// Source describes where rows come from.
type Source struct {
	Locator  string
	Format   string // declared format; detected when empty
	Sheet    string
	MaxBytes int64
}

// Load fetches src and parses all of its rows.
func Load(ctx context.Context, f Fetcher, src Source) ([]Row, error) {
	obj, err := f.Fetch(ctx, src.Locator)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	if src.MaxBytes > 0 && obj.Size > src.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrSourceTooLarge, obj.Size, src.MaxBytes)
	}

	format, err := DetectFormat(src.Format, src.Locator, obj.ContentType)
	if err != nil {
		return nil, err
	}

	body := &LimitedReader{R: obj.Body, Max: src.MaxBytes}
	rows, err := Read(body, format, ReadOptions{Sheet: src.Sheet, SkipEmptyRows: true})
	if err != nil {
		return nil, fmt.Errorf("read %s source: %w", format, err)
	}
	return rows, nil
}
