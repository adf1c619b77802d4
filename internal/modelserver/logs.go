package modelserver

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
)

// StreamLogs copies the server log to w. With follow set it keeps reading
// new lines until ctx is done; otherwise it stops at end of file.
func (s *Server) StreamLogs(ctx context.Context, w io.Writer, follow bool) error {
	t, err := tail.TailFile(s.LogPath(), tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		Poll:      true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open server log: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read server log: %w", line.Err)
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		}
	}
}
