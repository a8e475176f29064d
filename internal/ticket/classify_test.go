package ticket

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

func apiError(ret string) error {
	return &dmapi.APIError{API: "mtop.trade.order.build.h5", Ret: []string{ret}}
}

func TestClassifyKnownCodes(t *testing.T) {
	cases := []struct {
		ret  string
		want ErrorKind
	}{
		{"FAIL_SYS_TRAFFIC_LIMIT::哎哟喂,被挤爆啦,请稍后重试", KindSystemBusy},
		{"FAIL_SYS_SESSION_EXPIRED::Session过期", KindSystemBusy},
		{"B-00203-200-034::您选购的商品信息已过期，请重新查询", KindProductExpired},
	}

	for _, tc := range cases {
		if got := Classify(apiError(tc.ret)); got != tc.want {
			t.Fatalf("ret %q 期望 %v, 实际 %v", tc.ret, tc.want, got)
		}
	}
}

func TestClassifyUnknownCodeIsOther(t *testing.T) {
	if got := Classify(apiError("FAIL_BIZ_SOMETHING_ELSE::未知错误")); got != KindOther {
		t.Fatalf("未知错误码应归类为 Other, 实际 %v", got)
	}
}

func TestClassifyTransportErrorIsOther(t *testing.T) {
	if got := Classify(errors.New("connection reset by peer")); got != KindOther {
		t.Fatalf("传输错误应归类为 Other, 实际 %v", got)
	}
}

func TestClassifyWrappedAPIError(t *testing.T) {
	err := fmt.Errorf("build order: %w", apiError("FAIL_SYS_TRAFFIC_LIMIT::限流"))
	if got := Classify(err); got != KindSystemBusy {
		t.Fatalf("包装后的 APIError 仍应正确归类, 实际 %v", got)
	}
}
