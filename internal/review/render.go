package review

import (
	"fmt"
	"strings"

	"driver_bot/internal/driver"
)

type fieldLine struct {
	key   string
	value string
}

type section struct {
	stage  string
	fields []fieldLine
}

var mediaFields = map[string][]string{
	"PASSPORT":      {"photo"},
	"LICENSE":       {"front", "back"},
	"TECH_PASSPORT": {"front", "back"},
}

func sections(d driver.Driver) []section {
	out := []section{
		{stage: "PASSPORT", fields: []fieldLine{
			{"fullName", d.Passport.FullName},
			{"serialNumber", d.Passport.SerialNumber},
			{"birthDate", d.Passport.BirthDate},
		}},
		{stage: "LICENSE", fields: []fieldLine{
			{"series", d.License.Series},
			{"number", d.License.Number},
			{"issueDate", d.License.IssueDate},
			{"categories", d.License.Categories},
		}},
		{stage: "TECH_PASSPORT", fields: []fieldLine{
			{"series", d.TechPassport.Series},
			{"number", d.TechPassport.Number},
			{"year", d.TechPassport.Year},
			{"model", d.TechPassport.Model},
		}},
	}
	for i := range out {
		for _, name := range mediaFields[out[i].stage] {
			if _, ok := d.Media[out[i].stage+"."+name]; ok {
				out[i].fields = append(out[i].fields, fieldLine{key: name})
			}
		}
	}
	return out
}

// Render строит текст карточки очереди из статуса заявки.
func (c *Coordinator) Render(d driver.Driver) string {
	lang := c.language
	lines := []string{c.texts.Format(lang, "review.title", subjectLabel(d))}
	if d.InvitedBy != 0 {
		inviter := "ID " + fmt.Sprint(d.InvitedBy)
		if d.InvitedByUsername != "" {
			inviter = "@" + d.InvitedByUsername
		}
		lines = append(lines, c.texts.Format(lang, "review.invited_by", inviter))
	}
	lines = append(lines, "", c.texts.Format(lang, "review.status", c.texts.Text(lang, "status."+string(d.Status))))
	switch {
	case d.Status == driver.StatusInProgress && d.ClaimedByName != "":
		lines = append(lines, c.texts.Format(lang, "review.claimed_by", d.ClaimedByName))
	case d.Status.IsFinal() && d.ResolvedByName != "":
		lines = append(lines, c.texts.Format(lang, "review.resolved_by", d.ResolvedByName))
	}
	lines = append(lines, c.texts.Format(lang, "review.id", d.ID))
	return strings.Join(lines, "\n")
}

// privateSections собирает сообщения с данными заявки для проверяющего.
func (c *Coordinator) privateSections(d driver.Driver) []string {
	lang := c.language
	var out []string
	for _, s := range sections(d) {
		lines := []string{c.texts.Text(lang, "private."+s.stage)}
		for _, f := range s.fields {
			value := f.value
			if value == "" {
				if _, ok := d.Media[s.stage+"."+f.key]; ok {
					value = c.texts.Text(lang, "media.attached")
				}
			}
			lines = append(lines, fmt.Sprintf("%s: %s", c.texts.Text(lang, "field."+s.stage+"."+f.key), value))
		}
		out = append(out, strings.Join(lines, "\n"))
	}
	out = append(out, fmt.Sprintf("%s: %s", c.texts.Text(lang, "field.phone"), d.Phone))
	return out
}

type photo struct {
	key     string
	ref     string
	caption string
}

// photos возвращает приложенные снимки в порядке этапов анкеты.
func (c *Coordinator) photos(d driver.Driver) []photo {
	lang := c.language
	var out []photo
	for _, s := range sections(d) {
		for _, name := range mediaFields[s.stage] {
			key := s.stage + "." + name
			ref, ok := d.Media[key]
			if !ok || ref == "" {
				continue
			}
			caption := c.texts.Text(lang, "section."+s.stage) + " " + c.texts.Text(lang, "field."+key)
			out = append(out, photo{key: key, ref: ref, caption: caption})
		}
	}
	return out
}

func subjectLabel(d driver.Driver) string {
	if d.Username != "" {
		return "@" + d.Username
	}
	if d.Passport.FullName != "" {
		return d.Passport.FullName
	}
	return d.ID
}
