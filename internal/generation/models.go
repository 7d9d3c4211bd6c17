package generation

// Model describes a selectable provider model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var availableModels = []Model{
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Description: "Fast and efficient"},
	{ID: "gpt-4", Name: "GPT-4", Description: "Most capable, best quality"},
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Description: "Fast and powerful"},
}

// AvailableModels returns a copy of the static model list.
func AvailableModels() []Model {
	return append([]Model(nil), availableModels...)
}

func isKnownModel(id string) bool {
	for _, m := range availableModels {
		if m.ID == id {
			return true
		}
	}
	return false
}
