package models

// ConfigBundle holds the values read from the config spreadsheet.
// A missing row leaves its field empty.
type ConfigBundle struct {
	APIKey        string `json:"apiKey"`
	ModelName     string `json:"model"`
	ServerAddress string `json:"nodeServer"`
}
