package services

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Receipt photos come straight from phone cameras and are routinely several
// megabytes. Anything larger than this on its longest side gets downscaled
// before it is stored.
const receiptMaxDimension = 1600

// ReceiptImageService normalizes receipt photos before storage: decode,
// honor EXIF orientation, downscale oversized images and re-encode as JPEG.
// Non-image receipts (PDFs) pass through untouched.
type ReceiptImageService struct {
	jpegQuality int
}

// NewReceiptImageService creates a new receipt image service
func NewReceiptImageService() *ReceiptImageService {
	return &ReceiptImageService{jpegQuality: 85}
}

// IsImage reports whether the upload should go through normalization
func (s *ReceiptImageService) IsImage(header *multipart.FileHeader) bool {
	contentType := header.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, "image/")
}

// Normalize returns the processed image bytes and the filename the storage
// layer should use. The original stream is consumed.
func (s *ReceiptImageService) Normalize(file multipart.File, header *multipart.FileHeader) ([]byte, string, error) {
	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("no se pudo leer la imagen del recibo: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > receiptMaxDimension || bounds.Dy() > receiptMaxDimension {
		img = imaging.Fit(img, receiptMaxDimension, receiptMaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("no se pudo procesar la imagen del recibo: %w", err)
	}

	filename := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)) + ".jpg"
	return buf.Bytes(), filename, nil
}
