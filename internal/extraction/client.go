// Package extraction reads passports and vehicle registration documents with the
// Mindee OCR API.
//
// Passports go through the synchronous off-the-shelf passport model. Vehicle pages
// use per-country custom endpoints, which are asynchronous: the page is enqueued
// and the job is polled until the document is ready.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/core/netutil"
	"github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/internal/conversation"
	"github.com/m3rciful/insurebot/internal/model"
)

const (
	comp = logger.CompExtraction

	passportPath = "/v1/products/mindee/passport/v1/predict"
	maxBody      = 4 << 20
)

var errNoPages = errors.New("no document pages")

// StatusError is a non-2xx answer from the OCR API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ocr api: status %d", e.Code)
	}
	return fmt.Sprintf("ocr api: status %d: %s", e.Code, e.Body)
}

// Client implements conversation.Extractor.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient expects a normalized cfg. A nil hc selects a retrying client.
func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = netutil.NewHTTPClient(netutil.ClientOptions{Timeout: cfg.Timeout, RetryStatus: true})
	}
	return &Client{cfg: cfg, http: hc}
}

// ExtractPassport reads the passport fields from one photo.
func (c *Client) ExtractPassport(ctx context.Context, image []byte) (model.Passport, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	var resp predictResponse
	if err := c.upload(ctx, c.cfg.BaseURL+passportPath, image, &resp); err != nil {
		return model.Passport{}, c.fail(ctx, model.SidePassport, "", err)
	}
	p, err := parsePassport(resp.prediction())
	if err != nil {
		return model.Passport{}, c.fail(ctx, model.SidePassport, "", err)
	}
	logger.Info(ctx, comp, "extract.ok",
		slog.String("side", string(model.SidePassport)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return p, nil
}

// ExtractVehicle reads the pages present in pages. When both are given they are
// submitted concurrently and the first failure wins.
func (c *Client) ExtractVehicle(ctx context.Context, pages conversation.VehiclePages) (model.Vehicle, error) {
	if pages.Front == nil && pages.Back == nil {
		return model.Vehicle{}, &model.ExtractionError{Side: model.SideVehicleFront, Err: errNoPages}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	profile := pages.Profile

	var front, back model.Vehicle
	g, gctx := errgroup.WithContext(ctx)
	if pages.Front != nil {
		g.Go(func() error {
			v, err := c.vehicleFront(gctx, profile, pages.Front)
			if err != nil {
				return c.fail(gctx, model.SideVehicleFront, profile.Code, err)
			}
			front = v
			return nil
		})
	}
	if pages.Back != nil {
		g.Go(func() error {
			v, err := c.vehicleBack(gctx, profile, pages.Back)
			if err != nil {
				return c.fail(gctx, model.SideVehicleBack, profile.Code, err)
			}
			back = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Vehicle{}, err
	}

	var v model.Vehicle
	v.Merge(front)
	v.Merge(back)
	return v, nil
}

func (c *Client) vehicleFront(ctx context.Context, profile model.CountryProfile, image []byte) (model.Vehicle, error) {
	pred, err := c.predictAsync(ctx, profile.FrontEndpoint, image)
	if err != nil {
		return model.Vehicle{}, err
	}
	reg, err := pred.require("number", "vehicle_registration_number", "registration_number")
	if err != nil {
		return model.Vehicle{}, err
	}
	year, err := pred.year(time.Now(), "year", "vehicle_manufacture_year", "manufacture_year")
	if err != nil {
		return model.Vehicle{}, err
	}
	v := model.Vehicle{RegistrationNumber: reg, Year: year}
	if !profile.HasBackPage {
		// single-page documents carry everything on the front
		v.VIN = pred.str("vin")
		v.Make = pred.str("make")
		v.Model = pred.str("model", "type")
	}
	logger.Info(ctx, comp, "extract.ok",
		slog.String("side", string(model.SideVehicleFront)),
		slog.String("country", profile.Code),
	)
	return v, nil
}

func (c *Client) vehicleBack(ctx context.Context, profile model.CountryProfile, image []byte) (model.Vehicle, error) {
	if !profile.HasBackPage || profile.BackEndpoint == "" {
		return model.Vehicle{}, fmt.Errorf("country %q has no back page endpoint", profile.Code)
	}
	pred, err := c.predictAsync(ctx, profile.BackEndpoint, image)
	if err != nil {
		return model.Vehicle{}, err
	}
	var v model.Vehicle
	if v.VIN, err = pred.require("vin"); err != nil {
		return model.Vehicle{}, err
	}
	if v.Make, err = pred.require("make"); err != nil {
		return model.Vehicle{}, err
	}
	if v.Model, err = pred.require("model", "type"); err != nil {
		return model.Vehicle{}, err
	}
	logger.Info(ctx, comp, "extract.ok",
		slog.String("side", string(model.SideVehicleBack)),
		slog.String("country", profile.Code),
	)
	return v, nil
}

// predictAsync enqueues image on a custom endpoint and polls the job.
func (c *Client) predictAsync(ctx context.Context, endpoint string, image []byte) (prediction, error) {
	if endpoint == "" {
		return nil, errors.New("no endpoint configured")
	}
	base := fmt.Sprintf("%s/v1/products/%s/%s/v%s", c.cfg.BaseURL, c.cfg.Account, endpoint, c.cfg.Version)

	var enq predictResponse
	if err := c.upload(ctx, base+"/predict_async", image, &enq); err != nil {
		return nil, err
	}
	if enq.Job == nil || enq.Job.ID == "" {
		return nil, errors.New("enqueue: response has no job")
	}
	pollURL := enq.Job.PollingURL
	if pollURL == "" {
		pollURL = base + "/documents/queue/" + enq.Job.ID
	}

	for i := 1; i <= c.cfg.MaxPolls; i++ {
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, err
		}
		var res predictResponse
		if err := c.do(req, &res); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", enq.Job.ID, err)
		}
		if pred := res.prediction(); len(pred) > 0 {
			logger.Debug(ctx, comp, "job.done",
				slog.String("endpoint", endpoint),
				slog.String("job_id", enq.Job.ID),
				slog.Int("polls", i),
			)
			return pred, nil
		}
		if res.Job != nil && strings.EqualFold(res.Job.Status, "failed") {
			msg := "job failed"
			if res.Job.Error != nil && res.Job.Error.Message != "" {
				msg = res.Job.Error.Message
			}
			return nil, fmt.Errorf("job %s: %s", enq.Job.ID, msg)
		}
	}
	return nil, fmt.Errorf("job %s not finished after %d polls", enq.Job.ID, c.cfg.MaxPolls)
}

// upload posts image as the multipart "document" field.
func (c *Client) upload(ctx context.Context, url string, image []byte, out any) error {
	image = NormalizeImage(image, c.cfg.MaxImageSide)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="document"; filename="document.jpg"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) fail(ctx context.Context, side model.Side, country string, err error) error {
	attrs := []slog.Attr{
		slog.String("side", string(side)),
		slog.String("err", err.Error()),
	}
	if country != "" {
		attrs = append(attrs, slog.String("country", country))
	}
	var se *StatusError
	if errors.As(err, &se) {
		attrs = append(attrs, slog.Int("http_code", se.Code))
	}
	logger.Warn(ctx, comp, "extract.fail", attrs...)
	return &model.ExtractionError{Side: side, Err: err}
}

func parsePassport(pred prediction) (model.Passport, error) {
	if len(pred) == 0 {
		return model.Passport{}, errors.New("empty prediction")
	}
	name := strings.TrimSpace(pred.str("surname") + " " + pred.str("given_names"))
	if name == "" {
		return model.Passport{}, errors.New("missing field surname|given_names")
	}
	number, err := pred.require("id_number", "passport_number")
	if err != nil {
		return model.Passport{}, err
	}
	p := model.Passport{FullName: name, Number: number}
	dates := []struct {
		field string
		dst   *time.Time
	}{
		{"birth_date", &p.DateOfBirth},
		{"issuance_date", &p.IssueDate},
		{"expiry_date", &p.ExpiryDate},
	}
	for _, d := range dates {
		raw, err := pred.require(d.field)
		if err != nil {
			return model.Passport{}, err
		}
		t, ok := helpers.ParseDate(raw, helpers.ISODateLayouts...)
		if !ok {
			return model.Passport{}, fmt.Errorf("field %s: cannot parse %q", d.field, raw)
		}
		*d.dst = t
	}
	return p, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
