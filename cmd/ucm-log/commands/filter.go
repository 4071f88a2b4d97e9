package commands

import (
	"fmt"
	"io"

	"github.com/ucm-project/ucm-go/pkg/log"
)

// RunFilter copies the matching events of a log file into a new
// capture file and reports the count on w.
func RunFilter(path, output string, spec FilterSpec, w io.Writer) error {
	reader, err := openFiltered(path, spec)
	if err != nil {
		return err
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer logger.Close()

	count := 0
	err = eachEvent(reader, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
