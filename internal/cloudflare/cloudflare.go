// Package cloudflare provisions the DNS TXT records that bind a verified
// handle to a domain.
package cloudflare

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"
)

const (
	recordComment = "Domain verification record"
	recordTTL     = 1 // 1 means 'automatic'
)

// Provisioner creates TXT records in a single Cloudflare zone using legacy
// key auth (X-Auth-Email / X-Auth-Key).
type Provisioner struct {
	api        *cloudflare.API
	zoneID     string
	baseDomain string
	logger     *zap.Logger
}

// New creates a Provisioner for the given zone. baseDomain is the suffix
// appended to derived record names, e.g. "bluecheck.id".
func New(apiKey, email, zoneID, baseDomain string, logger *zap.Logger) (*Provisioner, error) {
	api, err := cloudflare.New(apiKey, email)
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}
	return &Provisioner{api: api, zoneID: zoneID, baseDomain: baseDomain, logger: logger}, nil
}

// RecordName derives the TXT record name for host under baseDomain,
// e.g. RecordName("example.com", "bluecheck.id") == "_atproto.example.com.bluecheck.id".
func RecordName(host, baseDomain string) string {
	return "_atproto." + strings.TrimSuffix(host, ".") + "." + baseDomain
}

// CreateTXTRecord creates the TXT record binding host to value. No retries
// and no idempotency: a duplicate call creates a duplicate record.
func (p *Provisioner) CreateTXTRecord(ctx context.Context, host, value string) (cloudflare.DNSRecord, error) {
	proxied := false
	record, err := p.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), cloudflare.CreateDNSRecordParams{
		Type:    "TXT",
		Name:    RecordName(host, p.baseDomain),
		Content: `"` + value + `"`,
		TTL:     recordTTL,
		Proxied: &proxied,
		Comment: recordComment,
	})
	if err != nil {
		return cloudflare.DNSRecord{}, err
	}
	p.logger.Info("TXT record created",
		zap.String("name", record.Name),
		zap.String("record_id", record.ID),
	)
	return record, nil
}
