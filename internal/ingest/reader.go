package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	maxLineSize = 1 << 20
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenInput is returned when the underlying reader fails
	ErrBrokenInput = errors.New("broken input")
)

// ReaderOption configures a Reader.
type ReaderOption func(r *Reader)

// WithLogger sets the logger for the reader
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger.With(slog.String("source", r.source))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) ReaderOption {
	return func(r *Reader) {
		r.parseErrorsThreshold = threshold
	}
}

// Reader turns an export stream into records.
type Reader struct {
	source string
	in     io.Reader

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewReader creates a Reader with a discard logger. The source name is only
// used for logging.
func NewReader(source string, in io.Reader, options ...ReaderOption) *Reader {
	r := Reader{
		source:               source,
		in:                   in,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Read parses lines and sends records until the input is exhausted, the
// context is cancelled or too many consecutive lines fail to parse. It does
// not close the records channel.
func (r *Reader) Read(ctx context.Context, records chan<- *Record) error {
	return r.scan(ctx, func(line string) error {
		rec, err := ParseLine(line)
		if err != nil {
			return err
		}

		select {
		case records <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// scan calls handle for every non-empty, non-comment line. Errors wrapping
// ErrMalformedLine count towards the threshold, any other error stops the
// scan.
func (r *Reader) scan(ctx context.Context, handle func(line string) error) error {
	var parseErrors uint8

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lineNo int
	for scanner.Scan() {
		lineNo++

		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		err := handle(line)
		if errors.Is(err, ErrMalformedLine) {
			parseErrors++
			r.logger.Warn(fmt.Sprintf("error parsing line: %s", err.Error()), slog.Int("line", lineNo))

			if parseErrors >= r.parseErrorsThreshold {
				return fmt.Errorf("%w: at line %d", ErrTooManyParseErrors, lineNo)
			}

			continue
		}
		if err != nil {
			return err
		}

		parseErrors = 0 // reset counter
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrBrokenInput, err)
	}

	return nil
}
