// Package panel реализует клиент 3x-ui панели: сессионную аутентификацию,
// чтение и полную замену инбаунда и поверх этого - операции уровня клиента
// (создать, включить, выключить, выставить срок, удалить), каждая из которых
// выполняется как цикл read-modify-write над единственным разделяемым
// ресурсом и потому сериализуется по id инбаунда.
package panel

import (
	"encoding/json"
	"fmt"
)

// InboundSnapshot - полный объект инбаунда панели. При replace объект
// отправляется обратно целиком: пропущенное поле панель сбросит в дефолт,
// поэтому все соседние поля перечислены в типе и проходят сквозь цикл
// read-modify-write без изменений.
type InboundSnapshot struct {
	Up             int64  `json:"up"`
	Down           int64  `json:"down"`
	Total          int64  `json:"total"`
	Remark         string `json:"remark"`
	Enable         bool   `json:"enable"`
	ExpiryTime     int64  `json:"expiryTime"`
	Listen         string `json:"listen"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"` // Вложенный JSON со списком клиентов
	StreamSettings string `json:"streamSettings"`
	Sniffing       string `json:"sniffing"`
	Allocate       string `json:"allocate,omitempty"`
}

// Settings - распакованное содержимое поля settings.
// Поля помимо clients сохраняются, чтобы replace их не потерял.
type Settings struct {
	Clients    []ClientRecord  `json:"clients"`
	Decryption string          `json:"decryption,omitempty"`
	Fallbacks  json.RawMessage `json:"fallbacks,omitempty"`
}

// ClientRecord - запись клиента внутри settings инбаунда.
type ClientRecord struct {
	ID          string `json:"id"` // Credential id (uuid)
	Flow        string `json:"flow"`
	Email       string `json:"email"` // Метка, по ней ищем клиента
	LimitIP     int    `json:"limitIp"`
	TotalGB     int64  `json:"totalGB"`
	ExpiryTime  int64  `json:"expiryTime"` // Unix-миллисекунды, 0 - бессрочно
	Enable      bool   `json:"enable"`
	TgID        string `json:"tgId"`
	SubID       string `json:"subId"`
	Reset       int    `json:"reset"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	ShortID     string `json:"shortId,omitempty"`
	SpiderX     string `json:"spiderX,omitempty"`
}

// TrafficStats - счётчики трафика клиента в байтах.
type TrafficStats struct {
	UploadBytes   int64 `json:"up"`
	DownloadBytes int64 `json:"down"`
}

// ParseSettings распаковывает поле settings снапшота.
func (s *InboundSnapshot) ParseSettings() (*Settings, error) {
	var settings Settings
	if err := json.Unmarshal([]byte(s.Settings), &settings); err != nil {
		return nil, fmt.Errorf("panel: unparseable inbound settings: %w", err)
	}
	return &settings, nil
}

// SetSettings запаковывает settings обратно в снапшот.
// Панель хранит поле с отступами, повторяем её формат.
func (s *InboundSnapshot) SetSettings(settings *Settings) error {
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("panel: encode inbound settings: %w", err)
	}
	s.Settings = string(raw)
	return nil
}

// FindClient возвращает указатель на клиента с данной меткой или nil.
func (s *Settings) FindClient(email string) *ClientRecord {
	for i := range s.Clients {
		if s.Clients[i].Email == email {
			return &s.Clients[i]
		}
	}
	return nil
}
