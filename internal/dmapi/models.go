package dmapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// successFlag marks a successful mtop call inside the ret array.
const successFlag = "SUCCESS::调用成功"

// Res is the generic mtop response envelope.
type Res struct {
	API  string          `json:"api"`
	V    string          `json:"v"`
	Ret  []string        `json:"ret"`
	Data json.RawMessage `json:"data"`
}

// Success reports whether any ret entry carries the调用成功 flag.
func (r *Res) Success() bool {
	for _, ret := range r.Ret {
		if strings.Contains(ret, successFlag) {
			return true
		}
	}
	return false
}

// RetMsg returns the first ret entry, usually "CODE::message".
func (r *Res) RetMsg() string {
	if len(r.Ret) == 0 {
		return ""
	}
	return r.Ret[0]
}

// Identity is the resolved user behind the configured cookie.
type Identity struct {
	Nickname string `json:"nickname"`
	UserID   string `json:"userId"`
}

// TicketDetail is the ticket/catalog payload from detail.getdetail.
type TicketDetail struct {
	DetailViewComponentMap struct {
		Item struct {
			StaticData struct {
				ItemBase struct {
					ItemName string `json:"itemName"`
				} `json:"itemBase"`
			} `json:"staticData"`
			Item struct {
				PerformBases       []PerformBase `json:"performBases"`
				SellStartTimeStr   string        `json:"sellStartTimeStr"`
				SellStartTimestamp string        `json:"sellStartTimestamp"`
			} `json:"item"`
		} `json:"item"`
	} `json:"detailViewComponentMap"`
}

// PerformBase groups the performs of one session.
type PerformBase struct {
	Performs []PerformRef `json:"performs"`
}

// PerformRef names one performance within a session.
type PerformRef struct {
	PerformID   string `json:"performId"`
	PerformName string `json:"performName"`
}

// ItemName returns the ticket's display name.
func (d *TicketDetail) ItemName() string {
	return d.DetailViewComponentMap.Item.StaticData.ItemBase.ItemName
}

// SaleStartTimeStr returns the human-readable sale-open time.
func (d *TicketDetail) SaleStartTimeStr() string {
	return d.DetailViewComponentMap.Item.Item.SellStartTimeStr
}

// SaleStartMillis parses the catalog sale-open timestamp (epoch millis).
func (d *TicketDetail) SaleStartMillis() (int64, error) {
	raw := d.DetailViewComponentMap.Item.Item.SellStartTimestamp
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sellStartTimestamp %q: %w", raw, err)
	}
	return millis, nil
}

// Perform returns the first performance of the given session (0-based).
func (d *TicketDetail) Perform(sessionIdx int) (PerformRef, error) {
	bases := d.DetailViewComponentMap.Item.Item.PerformBases
	if sessionIdx < 0 || sessionIdx >= len(bases) {
		return PerformRef{}, fmt.Errorf("场次索引 %d 超出范围 (共 %d 场)", sessionIdx+1, len(bases))
	}
	if len(bases[sessionIdx].Performs) == 0 {
		return PerformRef{}, fmt.Errorf("场次 %d 无演出信息", sessionIdx+1)
	}
	return bases[sessionIdx].Performs[0], nil
}

// PerformDetail is the session/tier listing from subpage.getdetail.
type PerformDetail struct {
	Perform struct {
		PerformID string `json:"performId"`
		SkuList   []Sku  `json:"skuList"`
	} `json:"perform"`
}

// Sku is one price tier of a performance.
type Sku struct {
	SkuID      string          `json:"skuId"`
	ItemID     string          `json:"itemId"`
	PriceName  string          `json:"priceName"`
	Price      decimal.Decimal `json:"price"`
	SkuSalable string          `json:"skuSalable"`
}

// Salable reports whether the tier is currently marketable.
func (s *Sku) Salable() bool {
	return strings.Contains(s.SkuSalable, "true")
}

// OrderDraft is the build-order response consumed by submit.
type OrderDraft struct {
	Data      map[string]json.RawMessage `json:"data"`
	Linkage   Linkage                    `json:"linkage"`
	Hierarchy Hierarchy                  `json:"hierarchy"`
	Global    Global                     `json:"global"`
}

// Linkage carries the order form's field wiring.
type Linkage struct {
	Input     []string        `json:"input"`
	Common    LinkageCommon   `json:"common"`
	Signature json.RawMessage `json:"signature"`
}

// LinkageCommon holds the submit/validate parameter blobs.
type LinkageCommon struct {
	Compress       bool   `json:"compress"`
	SubmitParams   string `json:"submitParams"`
	ValidateParams string `json:"validateParams"`
}

// Hierarchy describes the order form's component tree.
type Hierarchy struct {
	Root      string                     `json:"root"`
	Structure map[string]json.RawMessage `json:"structure"`
}

// Global carries order-wide secrets issued at build time.
type Global struct {
	SecretValue string `json:"secretValue"`
}
