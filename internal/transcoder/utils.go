package transcoder

import (
	"os"
)

// removeFile removes a file, ignoring errors
func removeFile(path string) {
	os.Remove(path)
}
