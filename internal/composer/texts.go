package composer

import "fmt"

// Placeholder marks where podcast names are substituted into a template.
const Placeholder = "[PODCASTS]"

// CollectiveNoun replaces the name list when not a single name fits.
const CollectiveNoun = "mehreren"

// Replies sent by the bot.
const (
	TextAcknowledge   = "Alles klar, ich schau mal ob ich da was finde \U0001F50E (kann ein paar Minuten dauern ⌚️ )"
	TextNotUnderstood = "Sorry. Ich versteh das nicht wirklich. Bin ja auch nur ein dummer Bot. \U0001F916 Wenn Du mir gar keine Frage stellen wolltest. Ignoriere das einfach :)"
	TextNoSearchTerms = "Ich konnte weder einen Podcast, noch einen Suchbegriff aus Deiner Anfrage bestimmen.❓️\nBeispiel für eine Anfrage, die ich verstehe:'Ich suche einen Podcast über Gummibärchen'"
	TextNotFound      = "Ich habe Dich zwar verstanden, aber keine passenden Podcasts gefunden. \U0001F937"
	TextFailure       = "Sorry. Da ist was schief gelaufen"
)

const (
	summaryFormat = "Ich habe %s Folgen gefunden u.a. bei:\n\n" + Placeholder + "\n\n%s"

	captionSingle = "Das ist die neueste gefundene Episode:\n\n"
	captionAll    = "Das sind die gefundenen Episoden:\n\n"
	captionNewest = "Das sind die %d neuesten gefunden Episoden:\n\n"

	countSaturated = "mehr als 20"
)

// TextCollecting is the progress message sent while the search runs.
func TextCollecting(subject string) string {
	return fmt.Sprintf("Ich sammel mal eben die Podcasts zu '%s' zusammen. Einen kleinen Moment noch", subject)
}
