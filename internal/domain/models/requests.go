package models

import (
	"strings"

	"sidbot/pkg/util"
)

type ListSignalsRequest struct {
	State string `query:"state" json:"state" default:"all" validate:"oneof=all staged ready active"`
	Limit int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=1000"`
}

func (r *ListSignalsRequest) Normalize() { r.State = strings.ToLower(strings.TrimSpace(r.State)) }

type SignalRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,ticker"`
}

func (r *SignalRequest) Normalize() { r.Symbol = util.NormalizeSymbol(r.Symbol) }

type BarsRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,ticker"`
	N      int    `query:"n" json:"n" default:"60" validate:"gte=1,lte=1000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"oneof=1d"`
}

func (r *BarsRequest) Normalize() { r.Symbol = util.NormalizeSymbol(r.Symbol) }

type TriggerJobRequest struct {
	Name string `param:"name" json:"name" validate:"required,oneof=prep execute exits maintenance sync report"`
}

func (r *TriggerJobRequest) Normalize() { r.Name = strings.ToLower(strings.TrimSpace(r.Name)) }

type TriggerJobResponse struct {
	Job    string `json:"job"`
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
}
