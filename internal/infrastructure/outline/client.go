// Package outline talks to Outline VPN servers through their management API.
package outline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/constants"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const defaultTimeout = 15 * time.Second

var errCertificateMismatch = errors.New("server certificate does not match pinned fingerprint")

// Client manages access keys on one Outline server.
type Client struct {
	region     string
	apiURL     string
	httpClient *http.Client
	logger     logger.Interface
}

var _ provisioning.ResourceProvisioner = (*Client)(nil)

// NewClient builds a client for one server. When CertSHA256 is set the server's self-signed
// certificate is accepted only if its fingerprint matches.
func NewClient(cfg config.OutlineServerConfig, timeout time.Duration, log logger.Interface) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CertSHA256 != "" {
		transport.TLSClientConfig = pinnedTLSConfig(cfg.CertSHA256)
	}
	return &Client{
		region:     cfg.Region,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     log.Named("outline").With("region", cfg.Region),
	}
}

func pinnedTLSConfig(fingerprint string) *tls.Config {
	want := strings.ToLower(fingerprint)
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		// chain verification is replaced by the fingerprint check below
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errCertificateMismatch
			}
			sum := sha256.Sum256(rawCerts[0])
			if hex.EncodeToString(sum[:]) != want {
				return errCertificateMismatch
			}
			return nil
		},
	}
}

type accessKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccessURL string `json:"accessUrl"`
}

func (c *Client) Create(ctx context.Context) (provisioning.Credential, error) {
	var key accessKey
	if err := c.do(ctx, http.MethodPost, "/access-keys", nil, http.StatusCreated, &key); err != nil {
		return provisioning.Credential{}, err
	}
	if key.ID == "" || key.AccessURL == "" {
		return provisioning.Credential{}, fmt.Errorf("outline %s returned an incomplete access key", c.region)
	}
	c.logger.Infow("created access key", "key_id", key.ID)
	return provisioning.Credential{ID: key.ID, AccessURI: key.AccessURL}, nil
}

func (c *Client) Rename(ctx context.Context, credentialID, label string) error {
	body := map[string]string{"name": label}
	return c.do(ctx, http.MethodPut, "/access-keys/"+url.PathEscape(credentialID)+"/name", body, http.StatusNoContent, nil)
}

// Delete removes a key. A missing key yields provisioning.ErrCredentialNotFound.
func (c *Client) Delete(ctx context.Context, credentialID string) error {
	if err := c.do(ctx, http.MethodDelete, "/access-keys/"+url.PathEscape(credentialID), nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	c.logger.Infow("deleted access key", "key_id", credentialID)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", provisioning.ErrRegionUnavailable, c.region, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s%s", provisioning.ErrCredentialNotFound, c.region, path)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: HTTP %d", provisioning.ErrRegionUnavailable, c.region, resp.StatusCode)
	case resp.StatusCode != wantStatus && resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("outline %s %s %s: HTTP %d: %s", c.region, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode outline response: %w", err)
		}
	}
	return nil
}
