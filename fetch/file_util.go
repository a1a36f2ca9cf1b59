package fetch

import (
	"fmt"
	"io"
	"os"
)

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func writeToFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create scratch file %s: %w", dest, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("cannot write scratch file %s: %w", dest, err)
	}
	return nil
}
