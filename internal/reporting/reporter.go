package reporting

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// Reporter collects analysis findings and renders them on Close.
type Reporter interface {
	// Write adds the findings reported against one source file.
	Write(path string, findings []schemas.Finding) error
	// Close renders the report and closes the underlying writer.
	Close() error
}

// nopWriteCloser lets callers hand over a writer they keep owning.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NopCloser wraps w so that Close is a no-op.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

// New creates a reporter for format writing to w. The reporter takes
// ownership of w.
func New(format string, w io.WriteCloser, toolVersion string, logger *zap.Logger) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch strings.ToLower(format) {
	case "sarif":
		return NewSARIFReporter(w, toolVersion, logger), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}
