package service

import "context"

// Collaborator interfaces implemented outside this subsystem. The workshop
// backend renders documents and owns the final signed artifact; this service
// only shuttles bytes between it and the tablet.

// DocumentFetcher returns the unsigned document to present on the tablet.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, companyID, documentID string) ([]byte, error)
}

// SignedDocumentStore persists the assembled signed document once a session
// completes.
type SignedDocumentStore interface {
	StoreSignedDocument(ctx context.Context, companyID, sessionID, documentID string, document, signature []byte, signerName string) error
}
