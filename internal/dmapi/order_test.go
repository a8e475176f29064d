package dmapi

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBindViewersMarksFirstN(t *testing.T) {
	raw := json.RawMessage(`{"fields":{"viewerList":[{"name":"甲"},{"name":"乙"},{"name":"丙"}]}}`)

	bound, err := bindViewers(raw, 2)
	if err != nil {
		t.Fatalf("绑定观演人不应报错: %v", err)
	}

	var component struct {
		Fields struct {
			ViewerList []struct {
				Name   string `json:"name"`
				IsUsed bool   `json:"isUsed"`
			} `json:"viewerList"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(bound, &component); err != nil {
		t.Fatalf("绑定结果应为合法 JSON: %v", err)
	}
	viewers := component.Fields.ViewerList
	if len(viewers) != 3 {
		t.Fatalf("观演人数量不应变化, 实际 %d", len(viewers))
	}
	if !viewers[0].IsUsed || !viewers[1].IsUsed {
		t.Fatal("前两位观演人应被选中")
	}
	if viewers[2].IsUsed {
		t.Fatal("第三位观演人不应被选中")
	}
}

func TestBindViewersCountExceedsList(t *testing.T) {
	raw := json.RawMessage(`{"fields":{"viewerList":[{"name":"甲"}]}}`)

	bound, err := bindViewers(raw, 4)
	if err != nil {
		t.Fatalf("购票数超过观演人数不应报错: %v", err)
	}
	if !strings.Contains(string(bound), `"isUsed":true`) {
		t.Fatal("仅有的观演人应被选中")
	}
}

func TestBindViewersWithoutViewerList(t *testing.T) {
	raw := json.RawMessage(`{"fields":{"price":"680"}}`)

	bound, err := bindViewers(raw, 2)
	if err != nil {
		t.Fatalf("无观演人列表不应报错: %v", err)
	}
	if string(bound) != string(raw) {
		t.Fatal("无观演人列表的组件应原样透传")
	}
}

func TestBuildSubmitForm(t *testing.T) {
	draft := &OrderDraft{
		Data: map[string]json.RawMessage{
			"dmViewer_1":     json.RawMessage(`{"fields":{"viewerList":[{"name":"甲"},{"name":"乙"}]}}`),
			"item_1":         json.RawMessage(`{"fields":{"quantity":2}}`),
			"confirmOrder_1": json.RawMessage(`{"tag":"confirmOrder"}`),
			"order_1":        json.RawMessage(`{"tag":"order"}`),
			"address_1":      json.RawMessage(`{"tag":"address"}`),
		},
		Linkage: Linkage{
			Input: []string{"dmViewer_1", "item_1", "missing_1"},
			Common: LinkageCommon{
				Compress:       true,
				SubmitParams:   "submit-blob",
				ValidateParams: "validate-blob",
			},
			Signature: json.RawMessage(`"sig"`),
		},
		Hierarchy: Hierarchy{
			Root: "confirmOrder_1",
			Structure: map[string]json.RawMessage{
				"confirmOrder_1": json.RawMessage(`["order_1","address_1"]`),
			},
		},
	}

	form, err := buildSubmitForm(draft, 2)
	if err != nil {
		t.Fatalf("生成提交表单不应报错: %v", err)
	}
	if form["feature"] != orderFeature {
		t.Fatal("feature 字段应为固定值")
	}

	var params struct {
		Data      string `json:"data"`
		Hierarchy string `json:"hierarchy"`
		Linkage   string `json:"linkage"`
	}
	if err := json.Unmarshal([]byte(form["params"]), &params); err != nil {
		t.Fatalf("params 应为合法 JSON: %v", err)
	}

	var orderData map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params.Data), &orderData); err != nil {
		t.Fatalf("params.data 应为合法 JSON: %v", err)
	}
	for _, key := range []string{"dmViewer_1", "item_1", "confirmOrder_1", "order_1"} {
		if _, ok := orderData[key]; !ok {
			t.Fatalf("提交数据应包含 %s", key)
		}
	}
	if _, ok := orderData["address_1"]; ok {
		t.Fatal("非 order_ 前缀的子组件不应提交")
	}
	if !strings.Contains(string(orderData["dmViewer_1"]), `"isUsed":true`) {
		t.Fatal("观演人组件应带选中标记")
	}

	if !strings.Contains(params.Linkage, "submit-blob") || !strings.Contains(params.Linkage, "validate-blob") {
		t.Fatal("linkage 应携带提交/校验参数")
	}
	if !strings.Contains(params.Hierarchy, "structure") {
		t.Fatal("hierarchy 应携带 structure")
	}
}
