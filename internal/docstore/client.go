// Package docstore implements the workshop-backend collaborator interfaces:
// fetching the unsigned document to present on a tablet and persisting the
// final signed artifact.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const requestTimeout = 15 * time.Second

// Documents larger than this are refused outright; a render that big is a
// backend bug, not a signable invoice.
const maxDocumentBytes = 20 << 20

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// FetchDocument implements service.DocumentFetcher.
func (c *Client) FetchDocument(ctx context.Context, companyID, documentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/internal/companies/%s/documents/%s/render", c.baseURL, companyID, documentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: backend returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document %s exceeds %d bytes", documentID, maxDocumentBytes)
	}

	log.Debug().
		Str("documentId", documentID).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("document fetched")

	return data, nil
}

type signedDocumentPayload struct {
	SessionID  string `json:"sessionId"`
	DocumentID string `json:"documentId"`
	SignerName string `json:"signerName"`
	Document   []byte `json:"document"`
	Signature  []byte `json:"signature"`
}

// StoreSignedDocument implements service.SignedDocumentStore.
func (c *Client) StoreSignedDocument(ctx context.Context, companyID, sessionID, documentID string, document, signature []byte, signerName string) error {
	url := fmt.Sprintf("%s/internal/companies/%s/signed-documents", c.baseURL, companyID)

	body, err := json.Marshal(signedDocumentPayload{
		SessionID:  sessionID,
		DocumentID: documentID,
		SignerName: signerName,
		Document:   document,
		Signature:  signature,
	})
	if err != nil {
		return fmt.Errorf("marshal signed document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("store signed document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store signed document: backend returned %d", resp.StatusCode)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("documentId", documentID).
		Dur("elapsed", time.Since(start)).
		Msg("signed document persisted")

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
