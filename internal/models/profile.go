package models

// ProfileDescriptor - локально сохраняемый дескриптор клиента панели.
// Сериализуется в users.profile_blob; полей достаточно, чтобы собрать
// ссылку подключения без обращения к панели.
type ProfileDescriptor struct {
	ClientID    string `json:"client_id"` // Credential id клиента в панели
	Email       string `json:"email"`     // Метка клиента, user_<telegram_id>
	Port        int    `json:"port"`
	Security    string `json:"security"`
	Remark      string `json:"remark"`
	SNI         string `json:"sni"`
	PublicKey   string `json:"pbk"`
	Fingerprint string `json:"fp"`
	ShortID     string `json:"sid"`
	SpiderX     string `json:"spx"`
}
