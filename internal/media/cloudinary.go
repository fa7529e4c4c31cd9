package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/sirupsen/logrus"
)

type CloudinaryConfig struct {
	// UploadPrefix overrides the API origin, https://api.cloudinary.com by default.
	UploadPrefix string
	CloudName    string
	APIKey       string
	APISecret    string
	Folder       string
}

// Cloudinary stores images with the Cloudinary upload API.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *logrus.Logger
}

func NewCloudinary(cfg CloudinaryConfig, transport http.RoundTripper, logger *logrus.Logger) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	if cfg.UploadPrefix != "" {
		cld.Upload.Config.API.UploadPrefix = strings.TrimRight(cfg.UploadPrefix, "/")
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	cld.Upload.Client = http.Client{
		Timeout:   30 * time.Second,
		Transport: hostFailureTransport{base: transport},
	}

	return &Cloudinary{cld: cld, folder: cfg.Folder, logger: logger}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*UploadResult, error) {
	c.logger.WithField("filename", filename).Info("Uploading image to Cloudinary")

	resp, err := c.cld.Upload.Upload(ctx, body, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to cloudinary: %w", err)
	}
	if resp.Error.Message != "" {
		c.logger.WithField("reason", resp.Error.Message).Warn("Cloudinary rejected upload")
		return nil, rejected(resp.Error.Message)
	}

	c.logger.WithField("public_id", resp.PublicID).Info("Image uploaded to Cloudinary")
	return &UploadResult{URL: resp.SecureURL, PublicID: resp.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, publicID string) (*DeleteResult, error) {
	c.logger.WithField("public_id", publicID).Info("Deleting image from Cloudinary")

	resp, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return nil, fmt.Errorf("failed to delete from cloudinary: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, rejected(resp.Error.Message)
	}
	return &DeleteResult{Result: resp.Result}, nil
}

// hostFailureTransport turns responses that point at the host or at our own
// account (5xx, bad credentials, rate limits) into transport errors. The SDK
// decodes every other response, so a remaining 4xx shows up in the result's
// Error field as a rejection of the caller's input.
type hostFailureTransport struct {
	base http.RoundTripper
}

func (t hostFailureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if hostFailure(resp.StatusCode) {
		resp.Body.Close()
		return nil, fmt.Errorf("cloudinary returned error status %d", resp.StatusCode)
	}
	return resp, nil
}

func hostFailure(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, 420, http.StatusTooManyRequests:
		return true
	}
	return status >= http.StatusInternalServerError
}
