package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source - имя сервиса в поле Envelope.Source.
const Source = "plot-service"

// Типы событий плотов.
const (
	TypePlotTrusted  = "plot.trusted"
	TypePlotCleared  = "plot.cleared"
	TypePlotExported = "plot.exported"
	TypeRegionEdited = "region.edited"
)

// PlotTrusted публикуется после добавления игроков в доверенные.
type PlotTrusted struct {
	World string   `json:"world"`
	Plot  string   `json:"plot"`
	Actor string   `json:"actor"`
	Added []string `json:"added"`
}

// PlotCleared публикуется после очистки плота.
type PlotCleared struct {
	World       string `json:"world"`
	Plot        string `json:"plot"`
	Accelerated bool   `json:"accelerated"`
	Error       string `json:"error,omitempty"`
}

// PlotExported публикуется после выгрузки архива плота.
type PlotExported struct {
	World   string `json:"world"`
	Plot    string `json:"plot"`
	Regions int    `json:"regions"`
	Bytes   int64  `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

// RegionEdited публикуется после завершения операции менеджера регионов.
type RegionEdited struct {
	World     string `json:"world"`
	Operation string `json:"operation"`
	Regions   int    `json:"regions"`
	Error     string `json:"error,omitempty"`
}

// NewEnvelope сериализует payload в JSON и заворачивает его в Envelope.
func NewEnvelope(eventType string, payload any, meta map[string]string) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    Source,
		EventType: eventType,
		Version:   1,
		Priority:  5,
		Payload:   data,
		Metadata:  meta,
	}, nil
}

// Decode разбирает полезную нагрузку события в v.
func (ev *Envelope) Decode(v any) error {
	return json.Unmarshal(ev.Payload, v)
}

// Emit публикует событие в глобальную шину; ошибки только логируются вызывающим.
func Emit(eventType string, payload any, meta map[string]string) error {
	ev, err := NewEnvelope(eventType, payload, meta)
	if err != nil {
		return err
	}
	return publishBackground(ev)
}
