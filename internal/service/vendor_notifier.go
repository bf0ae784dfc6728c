package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"solarmarket/verify-api/config"

	"go.uber.org/zap"
)

// VendorNotifier fans a newly verified lead out to eligible vendors.
// Duplicates are tolerated by the receiving side.
type VendorNotifier interface {
	NotifyVendors(ctx context.Context, n VendorNotification) error
}

func NewVendorNotifier(cfg config.NotifyConfig, log *zap.Logger) VendorNotifier {
	if cfg.URL == "" {
		return &LogVendorNotifier{log: log}
	}

	return &HTTPVendorNotifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// HTTPVendorNotifier posts the notification as JSON to the fan-out endpoint.
type HTTPVendorNotifier struct {
	url    string
	secret string
	client *http.Client
}

func (n *HTTPVendorNotifier) NotifyVendors(ctx context.Context, v VendorNotification) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("Authorization", "Bearer "+n.secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vendor notifier responded with %d: %s", resp.StatusCode, msg)
	}

	return nil
}

type LogVendorNotifier struct {
	log *zap.Logger
}

func (n *LogVendorNotifier) NotifyVendors(_ context.Context, v VendorNotification) error {
	n.log.Info("Vendor notification",
		zap.String("questionnaire_id", v.QuestionnaireID),
		zap.String("property_type", v.PropertyType),
		zap.Float64("monthly_bill", v.MonthlyBill))
	return nil
}
