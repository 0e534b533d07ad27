package services

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const MaxPhotoBytes = 5 << 20

// maxPhotoPixels caps decoded size; a small compressed file can declare
// dimensions that would take gigabytes to decode.
const maxPhotoPixels = 40_000_000

const (
	originalObject = "original"
	croppedObject  = "crop.jpg"
	smallObject    = "small.jpg"
)

// PhotoStore is the object storage the photo service writes to.
type PhotoStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectName string) error
	PublicURL(objectName string) string
}

type PhotoOptions struct {
	Folder string
	Width  int
	Height int
	// SmallWidth and SmallHeight request an extra downscaled variant.
	SmallWidth  int
	SmallHeight int
}

var (
	AvatarOptions = PhotoOptions{Folder: "avatars", Width: 150, Height: 150}
	CoverOptions  = PhotoOptions{Folder: "covers", Width: 1200, Height: 1800, SmallWidth: 300, SmallHeight: 450}
)

type PhotoResult struct {
	Key        string `json:"-"`
	ImageURL   string `json:"imageUrl"`
	CroppedURL string `json:"autoCroppedUrl"`
	SmallURL   string `json:"optimizedUrl,omitempty"`
}

type PhotoService struct {
	store PhotoStore
}

func NewPhotoService(store PhotoStore) *PhotoService {
	return &PhotoService{store: store}
}

// Upload stores the original image plus a centre-cropped variant of the
// requested size. Key identifies the stored set for Delete.
func (s *PhotoService) Upload(ctx context.Context, data []byte, opts PhotoOptions) (*PhotoResult, error) {
	if len(data) == 0 {
		return nil, apperr.BadRequest("file is required")
	}
	if len(data) > MaxPhotoBytes {
		return nil, apperr.BadRequest("file must not exceed 5 MB")
	}

	contentType := http.DetectContentType(data)
	img, err := decodeImage(data, contentType)
	if err != nil {
		return nil, err
	}

	key := path.Join(opts.Folder, uuid.NewString())
	result := &PhotoResult{Key: key}

	if err := s.store.Upload(ctx, path.Join(key, originalObject), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, apperr.Internal("failed to store photo", err)
	}
	result.ImageURL = s.store.PublicURL(path.Join(key, originalObject))

	cropped, err := s.storeVariant(ctx, img, key, croppedObject, opts.Width, opts.Height)
	if err != nil {
		s.Delete(ctx, key)
		return nil, err
	}
	result.CroppedURL = cropped

	if opts.SmallWidth > 0 && opts.SmallHeight > 0 {
		small, err := s.storeVariant(ctx, img, key, smallObject, opts.SmallWidth, opts.SmallHeight)
		if err != nil {
			s.Delete(ctx, key)
			return nil, err
		}
		result.SmallURL = small
	}

	return result, nil
}

// Delete removes every object stored under key. Failures are logged only.
func (s *PhotoService) Delete(ctx context.Context, key string) {
	for _, object := range []string{originalObject, croppedObject, smallObject} {
		if err := s.store.Delete(ctx, path.Join(key, object)); err != nil {
			logger.Warn("photo_delete_failed", map[string]interface{}{
				"key":    key,
				"object": object,
				"error":  err.Error(),
			})
		}
	}
}

func (s *PhotoService) storeVariant(ctx context.Context, img image.Image, key, name string, width, height int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, CropAndScale(img, width, height), &jpeg.Options{Quality: 85}); err != nil {
		return "", apperr.Internal("failed to encode photo", err)
	}

	objectName := path.Join(key, name)
	if err := s.store.Upload(ctx, objectName, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return "", apperr.Internal("failed to store photo", err)
	}
	return s.store.PublicURL(objectName), nil
}

type imageCodec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var imageCodecs = map[string]imageCodec{
	"image/jpeg": {jpeg.Decode, jpeg.DecodeConfig},
	"image/png":  {png.Decode, png.DecodeConfig},
	"image/gif":  {gif.Decode, gif.DecodeConfig},
}

func decodeImage(data []byte, contentType string) (image.Image, error) {
	codec, ok := imageCodecs[contentType]
	if !ok {
		return nil, apperr.BadRequest("file must be a JPEG, PNG or GIF image")
	}

	cfg, err := codec.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.BadRequest("file must be a JPEG, PNG or GIF image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPhotoPixels {
		return nil, apperr.BadRequest("image dimensions are too large")
	}

	img, err := codec.decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.BadRequest("file must be a JPEG, PNG or GIF image")
	}
	return img, nil
}

// CropAndScale cuts the largest centred region with the target aspect ratio
// out of src and scales it to width x height.
func CropAndScale(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	cropW, cropH := srcW, srcH
	if srcW*height > srcH*width {
		cropW = srcH * width / height
	} else {
		cropH = srcW * height / width
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	region := image.Rect(x0, y0, x0+cropW, y0+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)
	return dst
}
