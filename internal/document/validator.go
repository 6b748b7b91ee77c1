package document

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Validator handles upload validation before any processing
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator with the given size limit
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{maxFileSize: maxFileSize}
}

// MaxFileSize returns the size limit in bytes
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateBytes checks an upload held in memory
func (v *Validator) ValidateBytes(data []byte) error {
	if len(data) == 0 {
		return ferrors.New(ferrors.ErrorTypeInvalidInput, "file is empty")
	}
	if int64(len(data)) > v.maxFileSize {
		return ferrors.New(ferrors.ErrorTypeInvalidInput, "file too large").
			WithContext(fmt.Sprintf("%d bytes (max: %d bytes)", len(data), v.maxFileSize))
	}
	if raster.IsPDF(data) {
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return ferrors.New(ferrors.ErrorTypeInvalidInput,
			"unsupported file type: expected a PDF or an image")
	}
	return nil
}

// ValidateFileInfo performs basic validation on file info without reading it
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext != ".pdf" && !imageExtensions[ext] {
		return fmt.Errorf("file is not a PDF or image: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// ReadFile validates and reads a file from disk
func (v *Validator) ReadFile(filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := v.ValidateBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}
