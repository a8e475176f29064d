package ticket

import (
	"context"
	"testing"
)

func testBurst(gw *fakeGateway, size int, observer func(AttemptOutcome)) *Burst {
	return NewBurst(gw, BurstOptions{
		Size:     size,
		Sleep:    instantSleep,
		Observer: observer,
	}, noopLogger())
}

func TestBurstFirstSuccessStopsImmediately(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{{}}}
	b := testBurst(gw, 5, nil)

	ok, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if err != nil {
		t.Fatalf("首次成功不应报错: %v", err)
	}
	if !ok {
		t.Fatal("首次提交成功应返回 true")
	}
	if gw.submitCalls != 1 {
		t.Fatalf("成功后不应再发起提交, 实际 %d 次", gw.submitCalls)
	}
}

func TestBurstExhaustsBudgetOnRejection(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{{submitRet: "FAIL_BIZ_NO_STOCK::库存不足"}}}
	b := testBurst(gw, 4, nil)

	ok, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if err != nil {
		t.Fatalf("普通失败耗尽预算不应报错: %v", err)
	}
	if ok {
		t.Fatal("全部被拒应返回 false")
	}
	if gw.buildCalls != 4 {
		t.Fatalf("应恰好尝试 4 次, 实际 %d 次", gw.buildCalls)
	}
}

func TestBurstProductExpiredAbortsEarly(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{
		{submitRet: "FAIL_BIZ_NO_STOCK::库存不足"},
		{buildErr: apiError("B-00203-200-034::您选购的商品信息已过期，请重新查询")},
	}}
	b := testBurst(gw, 6, nil)

	ok, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if ok {
		t.Fatal("过期中止不应返回 true")
	}
	if err == nil {
		t.Fatal("商品过期应向上传播错误")
	}
	if Classify(err) != KindProductExpired {
		t.Fatalf("错误应归类为 product_expired, 实际 %v", Classify(err))
	}
	if gw.buildCalls != 2 {
		t.Fatalf("第 2 次即应中止, 实际尝试 %d 次", gw.buildCalls)
	}
}

func TestBurstSystemBusyPropagates(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{
		{buildErr: apiError("FAIL_SYS_TRAFFIC_LIMIT::哎哟喂,被挤爆啦,请稍后重试")},
	}}
	b := testBurst(gw, 6, nil)

	_, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if err == nil {
		t.Fatal("限流应向上传播错误")
	}
	if Classify(err) != KindSystemBusy {
		t.Fatalf("错误应归类为 system_busy, 实际 %v", Classify(err))
	}
	if gw.buildCalls != 1 {
		t.Fatalf("限流应立即中止, 实际尝试 %d 次", gw.buildCalls)
	}
}

func TestBurstOtherBuildFailureRetries(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{
		{buildErr: apiError("FAIL_BIZ_QUEUE::排队中")},
		{},
	}}
	b := testBurst(gw, 4, nil)

	ok, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if err != nil {
		t.Fatalf("普通失败后的成功不应报错: %v", err)
	}
	if !ok {
		t.Fatal("第二次成功应返回 true")
	}
	if gw.buildCalls != 2 {
		t.Fatalf("期望 2 次生成订单, 实际 %d 次", gw.buildCalls)
	}
}

func TestBurstObserverRecordsOutcomes(t *testing.T) {
	gw := &fakeGateway{attempts: []scriptedAttempt{
		{submitRet: "FAIL_BIZ_NO_STOCK::库存不足"},
		{},
	}}
	var outcomes []AttemptOutcome
	b := testBurst(gw, 4, func(o AttemptOutcome) { outcomes = append(outcomes, o) })

	if _, err := b.Run(context.Background(), Target{ItemID: "i", SkuID: "s", BuyCount: 1}); err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("应记录 2 条尝试, 实际 %d", len(outcomes))
	}
	if outcomes[0].Status != "rejected" || outcomes[1].Status != "success" {
		t.Fatalf("记录状态不正确: %+v", outcomes)
	}
	if outcomes[0].Attempt != 0 || outcomes[1].Attempt != 1 {
		t.Fatalf("记录序号不正确: %+v", outcomes)
	}
}

func TestBurstCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := &fakeGateway{attempts: []scriptedAttempt{{submitRet: "FAIL_BIZ_NO_STOCK::库存不足"}}}
	b := testBurst(gw, 4, nil)

	ok, err := b.Run(ctx, Target{ItemID: "i", SkuID: "s", BuyCount: 1})
	if ok {
		t.Fatal("取消后不应成功")
	}
	if err == nil {
		t.Fatal("取消应返回 context 错误")
	}
}
