package dmapi

import "context"

// Gateway is the signed vendor API surface the acquisition core drives.
// Failures reported inside a response envelope surface as *APIError so the
// caller can classify them; SubmitOrder instead returns the envelope even
// on rejection, because a rejected submission is an outcome, not an error.
type Gateway interface {
	FetchIdentity(ctx context.Context) (*Identity, error)
	FetchCatalog(ctx context.Context, ticketID string) (*TicketDetail, error)
	FetchSessionTiers(ctx context.Context, ticketID, performID string) (*PerformDetail, error)
	BuildOrder(ctx context.Context, itemID, skuID string, count int) (*OrderDraft, error)
	SubmitOrder(ctx context.Context, draft *OrderDraft, viewerCount int) (*Res, error)
}
