package probe

import (
	"github.com/sirupsen/logrus"
)

// RecordFormatter writes the entry message as a bare line without timestamp,
// level or fields, so record lines stay plain CSV.
type RecordFormatter struct{}

// Compile-time interface check.
var _ logrus.Formatter = (*RecordFormatter)(nil)

func (f *RecordFormatter) Format(e *logrus.Entry) ([]byte, error) {
	out := make([]byte, 0, len(e.Message)+1)
	out = append(out, e.Message...)

	return append(out, '\n'), nil
}
