package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/mudler/xlog"
)

// GetFileContent reads a local .pdf, .txt or .md file.
func GetFileContent(path string) (Page, error) {
	if _, err := os.Stat(path); err != nil {
		return Page{}, fmt.Errorf("file does not exist: %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		r, err := pdf.Open(path)
		if err != nil {
			return Page{}, err
		}
		b, err := r.GetPlainText()
		if err != nil {
			return Page{}, err
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(b); err != nil {
			return Page{}, err
		}
		return Page{Location: path, Type: TypePDF, Text: buf.String()}, nil
	case ".txt", ".md":
		xlog.Debug("Reading text file", "path", path)
		content, err := os.ReadFile(path)
		if err != nil {
			return Page{}, err
		}
		return Page{Location: path, Type: TypeText, Text: string(content)}, nil
	default:
		return Page{}, fmt.Errorf("unsupported file type %q", ext)
	}
}
