package transcription

import "strings"

// segmentJoiner склеивает финальные сегменты провайдера в одну реплику.
// Deepgram помечает is_final каждый завершенный кусок речи, а конец
// высказывания отмечает speech_final или сообщением UtteranceEnd.
type segmentJoiner struct {
	finals []string
}

// add добавляет завершенный сегмент
func (j *segmentJoiner) add(text string) {
	if text = strings.TrimSpace(text); text != "" {
		j.finals = append(j.finals, text)
	}
}

// preview - склеенные сегменты вместе с текущим промежуточным текстом
func (j *segmentJoiner) preview(interim string) string {
	parts := append([]string(nil), j.finals...)
	if interim = strings.TrimSpace(interim); interim != "" {
		parts = append(parts, interim)
	}
	return strings.Join(parts, " ")
}

// flush возвращает реплику целиком и очищает буфер
func (j *segmentJoiner) flush() (string, bool) {
	text := strings.Join(j.finals, " ")
	j.finals = nil
	return text, text != ""
}
