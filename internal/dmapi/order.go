package dmapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

const orderFeature = `{"subChannel":"damai@damaih5_h5","returnUrl":"https://m.damai.cn/damai/pay-success/index.html?spm=a2o71.orderconfirm.bottom.dconfirm&sqm=dianying.h5.unknown.value","serviceVersion":"2.0.0","dataTags":"sqm:dianying.h5.unknown.value"}`

// buildSubmitForm rebuilds the create-order form body from a build draft:
// the linkage input components (with the first viewerCount attendees bound),
// the confirmOrder root, and its order_* children.
func buildSubmitForm(draft *OrderDraft, viewerCount int) (map[string]string, error) {
	orderData := make(map[string]json.RawMessage, len(draft.Data))

	for _, key := range draft.Linkage.Input {
		raw, ok := draft.Data[key]
		if !ok {
			continue
		}
		if strings.HasPrefix(key, "dmViewer_") {
			bound, err := bindViewers(raw, viewerCount)
			if err != nil {
				return nil, fmt.Errorf("bind viewers on %s: %w", key, err)
			}
			raw = bound
		}
		orderData[key] = raw
	}

	root := draft.Hierarchy.Root
	if raw, ok := draft.Data[root]; ok {
		orderData[root] = raw
	}

	var children []string
	if rawChildren, ok := draft.Hierarchy.Structure[root]; ok {
		if err := json.Unmarshal(rawChildren, &children); err != nil {
			return nil, fmt.Errorf("decode hierarchy children: %w", err)
		}
	}
	for _, child := range children {
		if strings.HasPrefix(child, "order_") {
			if raw, ok := draft.Data[child]; ok {
				orderData[child] = raw
			}
		}
	}

	dataJSON, err := json.Marshal(orderData)
	if err != nil {
		return nil, err
	}
	hierarchyJSON, err := json.Marshal(map[string]any{
		"structure": draft.Hierarchy.Structure,
	})
	if err != nil {
		return nil, err
	}
	linkageJSON, err := json.Marshal(map[string]any{
		"common": map[string]any{
			"compress":       draft.Linkage.Common.Compress,
			"submitParams":   draft.Linkage.Common.SubmitParams,
			"validateParams": draft.Linkage.Common.ValidateParams,
		},
		"signature": draft.Linkage.Signature,
	})
	if err != nil {
		return nil, err
	}

	params, err := json.Marshal(map[string]string{
		"data":      string(dataJSON),
		"hierarchy": string(hierarchyJSON),
		"linkage":   string(linkageJSON),
	})
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"params":  string(params),
		"feature": orderFeature,
	}, nil
}

// bindViewers marks the first n entries of fields.viewerList as used.
// Components without a viewer list pass through untouched (no real-name
// binding required for that item).
func bindViewers(raw json.RawMessage, n int) (json.RawMessage, error) {
	var component map[string]any
	if err := json.Unmarshal(raw, &component); err != nil {
		return nil, err
	}

	fields, ok := component["fields"].(map[string]any)
	if !ok {
		return raw, nil
	}
	viewers, ok := fields["viewerList"].([]any)
	if !ok || len(viewers) == 0 {
		return raw, nil
	}

	for i := 0; i < n && i < len(viewers); i++ {
		viewer, ok := viewers[i].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("viewerList[%d] 结构异常", i)
		}
		viewer["isUsed"] = true
	}

	return json.Marshal(component)
}
