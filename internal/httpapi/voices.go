package httpapi

import (
	"net/http"
	"sort"
)

type voiceSummary struct {
	VoiceID  string `json:"voice_id"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
}

type listVoicesResponse struct {
	Genders   []string       `json:"genders"`
	Languages []string       `json:"languages"`
	Voices    []voiceSummary `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice catalog not configured")
		return
	}

	var all []voiceSummary
	for gender, byLanguage := range s.catalog.Table() {
		for language, voices := range byLanguage {
			for _, id := range voices {
				all = append(all, voiceSummary{VoiceID: id, Gender: gender, Language: language})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Gender != all[j].Gender {
			return all[i].Gender < all[j].Gender
		}
		if all[i].Language != all[j].Language {
			return all[i].Language < all[j].Language
		}
		return all[i].VoiceID < all[j].VoiceID
	})

	respondJSON(w, http.StatusOK, listVoicesResponse{
		Genders:   s.catalog.GenderLabels(),
		Languages: s.catalog.LanguageLabels(),
		Voices:    all,
	})
}
