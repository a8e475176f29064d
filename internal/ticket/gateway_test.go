package ticket

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// instantSleep skips real waiting but still honours cancellation.
func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// scriptedAttempt drives one BuildOrder/SubmitOrder pair of the fake.
type scriptedAttempt struct {
	buildErr  error
	submitErr error
	submitRet string // empty means成功
}

// fakeGateway is a scripted dmapi.Gateway for the core tests.
type fakeGateway struct {
	identity    *dmapi.Identity
	identityErr error
	catalog     *dmapi.TicketDetail
	catalogErr  error
	tiers       []*dmapi.PerformDetail // consumed per call, last repeats
	tiersErr    error

	attempts []scriptedAttempt // consumed per BuildOrder, last repeats
	pending   scriptedAttempt

	buildCalls  int
	submitCalls int
	tiersCalls  int
}

func (f *fakeGateway) FetchIdentity(context.Context) (*dmapi.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	if f.identity != nil {
		return f.identity, nil
	}
	return &dmapi.Identity{Nickname: "测试用户"}, nil
}

func (f *fakeGateway) FetchCatalog(context.Context, string) (*dmapi.TicketDetail, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.catalog, nil
}

func (f *fakeGateway) FetchSessionTiers(context.Context, string, string) (*dmapi.PerformDetail, error) {
	call := f.tiersCalls
	f.tiersCalls++
	if f.tiersErr != nil {
		return nil, f.tiersErr
	}
	if len(f.tiers) == 0 {
		return makePerformDetail(), nil
	}
	if call >= len(f.tiers) {
		call = len(f.tiers) - 1
	}
	return f.tiers[call], nil
}

func (f *fakeGateway) BuildOrder(context.Context, string, string, int) (*dmapi.OrderDraft, error) {
	idx := f.buildCalls
	f.buildCalls++
	if len(f.attempts) == 0 {
		f.pending = scriptedAttempt{submitRet: "FAIL_BIZ_XXX::默认失败"}
	} else {
		if idx >= len(f.attempts) {
			idx = len(f.attempts) - 1
		}
		f.pending = f.attempts[idx]
	}
	if f.pending.buildErr != nil {
		return nil, f.pending.buildErr
	}
	return &dmapi.OrderDraft{}, nil
}

func (f *fakeGateway) SubmitOrder(context.Context, *dmapi.OrderDraft, int) (*dmapi.Res, error) {
	f.submitCalls++
	if f.pending.submitErr != nil {
		return nil, f.pending.submitErr
	}
	if f.pending.submitRet == "" {
		return &dmapi.Res{Ret: []string{"SUCCESS::调用成功"}}, nil
	}
	return &dmapi.Res{Ret: []string{f.pending.submitRet}}, nil
}

var _ dmapi.Gateway = (*fakeGateway)(nil)

func makeTicketDetail(sellStartMillis int64) *dmapi.TicketDetail {
	var d dmapi.TicketDetail
	d.DetailViewComponentMap.Item.StaticData.ItemBase.ItemName = "测试演唱会"
	d.DetailViewComponentMap.Item.Item.PerformBases = []dmapi.PerformBase{
		{Performs: []dmapi.PerformRef{{PerformID: "perform-1", PerformName: "第一场"}}},
	}
	d.DetailViewComponentMap.Item.Item.SellStartTimeStr = "2026-09-01 20:00:00"
	d.DetailViewComponentMap.Item.Item.SellStartTimestamp = strconv.FormatInt(sellStartMillis, 10)
	return &d
}

func makePerformDetail(skus ...dmapi.Sku) *dmapi.PerformDetail {
	var d dmapi.PerformDetail
	d.Perform.PerformID = "perform-1"
	d.Perform.SkuList = skus
	return &d
}
