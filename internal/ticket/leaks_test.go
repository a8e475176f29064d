package ticket

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

func tierSku(id int, salable bool) dmapi.Sku {
	sale := "false"
	if salable {
		sale = "true"
	}
	return dmapi.Sku{
		SkuID:      "sku-" + string(rune('0'+id)),
		ItemID:     "item-" + string(rune('0'+id)),
		PriceName:  "看台",
		Price:      decimal.NewFromInt(int64(id) * 100),
		SkuSalable: sale,
	}
}

func newTestLeaks(gw *fakeGateway, opts LeaksOptions) *Leaks {
	if opts.Sleep == nil {
		opts.Sleep = instantSleep
	}
	burst := NewBurst(gw, BurstOptions{Size: 1, Sleep: instantSleep}, noopLogger())
	return NewLeaks(gw, burst, opts, noopLogger())
}

func TestLeaksBuysFirstSalableTier(t *testing.T) {
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{
			makePerformDetail(tierSku(1, false), tierSku(2, true)),
		},
		attempts: []scriptedAttempt{{}},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 3, DefaultBuyCount: 2})

	ok, err := l.Poll(context.Background(), "ticket-1", "perform-1")
	if err != nil {
		t.Fatalf("捡漏不应报错: %v", err)
	}
	if !ok {
		t.Fatal("有余票时捡漏应成功")
	}
	if gw.submitCalls != 1 {
		t.Fatalf("应只提交一次, 实际 %d", gw.submitCalls)
	}
}

func TestLeaksSkipsIneligibleGrades(t *testing.T) {
	// 第1档有票但不在配置范围内, 只允许第3档
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{
			makePerformDetail(tierSku(1, true), tierSku(2, false), tierSku(3, true)),
		},
		attempts: []scriptedAttempt{{}},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 1, Grades: []int{3}, DefaultBuyCount: 1})

	ok, err := l.Poll(context.Background(), "ticket-1", "perform-1")
	if err != nil {
		t.Fatalf("捡漏不应报错: %v", err)
	}
	if !ok {
		t.Fatal("第3档有票且在范围内, 应成功")
	}
}

func TestLeaksEligibleGradeWithoutStock(t *testing.T) {
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{
			makePerformDetail(tierSku(1, true), tierSku(2, false)),
		},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 2, Grades: []int{2}, DefaultBuyCount: 1})

	ok, err := l.Poll(context.Background(), "ticket-1", "perform-1")
	if err != nil {
		t.Fatalf("捡漏不应报错: %v", err)
	}
	if ok {
		t.Fatal("合格票档无库存不应成功")
	}
	if gw.submitCalls != 0 {
		t.Fatalf("不应提交订单, 实际 %d", gw.submitCalls)
	}
	if gw.tiersCalls != 2 {
		t.Fatalf("应查询两轮库存, 实际 %d", gw.tiersCalls)
	}
}

func TestLeaksOneTierPerCycle(t *testing.T) {
	// 第一轮: 第1档被抢拒单, 同轮第2档不再尝试; 第二轮第1档购入成功
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{
			makePerformDetail(tierSku(1, true), tierSku(2, true)),
		},
		attempts: []scriptedAttempt{{submitRet: "FAIL_BIZ_NO_STOCK::库存不足"}, {}},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 3, DefaultBuyCount: 1})

	ok, err := l.Poll(context.Background(), "ticket-1", "perform-1")
	if err != nil {
		t.Fatalf("捡漏不应报错: %v", err)
	}
	if !ok {
		t.Fatal("第二轮应购入成功")
	}
	if gw.tiersCalls != 2 {
		t.Fatalf("每轮只试一个票档, 应查询两轮, 实际 %d", gw.tiersCalls)
	}
	if gw.submitCalls != 2 {
		t.Fatalf("应提交两次, 实际 %d", gw.submitCalls)
	}
}

func TestLeaksExhaustionReturnsFalse(t *testing.T) {
	var out bytes.Buffer
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{makePerformDetail(tierSku(1, false))},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 4, DefaultBuyCount: 1, Out: &out})

	ok, err := l.Poll(context.Background(), "ticket-1", "perform-1")
	if err != nil {
		t.Fatalf("次数耗尽不应报错: %v", err)
	}
	if ok {
		t.Fatal("无余票时不应成功")
	}
	if gw.tiersCalls != 4 {
		t.Fatalf("应查询4轮, 实际 %d", gw.tiersCalls)
	}
	if !strings.Contains(out.String(), "无余票") {
		t.Fatal("应输出无余票提示")
	}
}

func TestLeaksCancelled(t *testing.T) {
	gw := &fakeGateway{
		tiers: []*dmapi.PerformDetail{makePerformDetail(tierSku(1, false))},
	}
	l := newTestLeaks(gw, LeaksOptions{Attempts: 10, DefaultBuyCount: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Poll(ctx, "ticket-1", "perform-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消应返回 context.Canceled, 实际 %v", err)
	}
}
