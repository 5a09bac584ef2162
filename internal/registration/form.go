package registration

import "fmt"

// Stage — раздел анкеты.
type Stage string

const (
	StagePassport     Stage = "PASSPORT"
	StageLicense      Stage = "LICENSE"
	StageTechPassport Stage = "TECH_PASSPORT"
	StagePhone        Stage = "PHONE"
)

// PhoneField — ключ телефона в данных этапа PHONE.
const PhoneField = "phone"

// FieldKind задает ожидаемый тип ввода для поля.
type FieldKind int

const (
	KindText FieldKind = iota
	KindPhoto
)

type Field struct {
	Name string
	Kind FieldKind
}

type StageDef struct {
	Stage  Stage
	Fields []Field
}

// Form описывает фиксированную последовательность этапов; последний всегда PHONE.
type Form struct {
	Stages []StageDef
}

func textFields(names ...string) []Field {
	out := make([]Field, 0, len(names))
	for _, name := range names {
		out = append(out, Field{Name: name, Kind: KindText})
	}
	return out
}

// TextForm собирает все данные текстом.
func TextForm() Form {
	return Form{Stages: []StageDef{
		{Stage: StagePassport, Fields: textFields("fullName", "serialNumber", "birthDate")},
		{Stage: StageLicense, Fields: textFields("series", "number", "issueDate", "categories")},
		{Stage: StageTechPassport, Fields: textFields("series", "number", "year", "model")},
		{Stage: StagePhone},
	}}
}

// PhotoForm дополняет текстовые поля фотографиями документов.
func PhotoForm() Form {
	form := TextForm()
	form.Stages[0].Fields = append(form.Stages[0].Fields, Field{Name: "photo", Kind: KindPhoto})
	form.Stages[1].Fields = append(form.Stages[1].Fields, Field{Name: "front", Kind: KindPhoto}, Field{Name: "back", Kind: KindPhoto})
	form.Stages[2].Fields = append(form.Stages[2].Fields, Field{Name: "front", Kind: KindPhoto}, Field{Name: "back", Kind: KindPhoto})
	return form
}

// FormByMode возвращает анкету по имени режима из конфигурации.
func FormByMode(mode string) (Form, error) {
	switch mode {
	case "", "text":
		return TextForm(), nil
	case "photo":
		return PhotoForm(), nil
	default:
		return Form{}, fmt.Errorf("unknown form mode %q", mode)
	}
}

func (f Form) first() (Stage, string) {
	def := f.Stages[0]
	if len(def.Fields) == 0 {
		return def.Stage, ""
	}
	return def.Stage, def.Fields[0].Name
}

func (f Form) stageIndex(stage Stage) int {
	for i, def := range f.Stages {
		if def.Stage == stage {
			return i
		}
	}
	return -1
}

// field возвращает описание поля и его позицию внутри этапа.
func (f Form) field(stage Stage, name string) (Field, int, bool) {
	idx := f.stageIndex(stage)
	if idx < 0 {
		return Field{}, -1, false
	}
	for i, field := range f.Stages[idx].Fields {
		if field.Name == name {
			return field, i, true
		}
	}
	return Field{}, -1, false
}

// next возвращает позицию, следующую за (stage, field).
func (f Form) next(stage Stage, field string) (Stage, string, bool) {
	idx := f.stageIndex(stage)
	if idx < 0 {
		return "", "", false
	}
	fields := f.Stages[idx].Fields
	for i, candidate := range fields {
		if candidate.Name == field && i < len(fields)-1 {
			return stage, fields[i+1].Name, true
		}
	}
	if idx+1 >= len(f.Stages) {
		return "", "", false
	}
	nextDef := f.Stages[idx+1]
	if len(nextDef.Fields) == 0 {
		return nextDef.Stage, "", true
	}
	return nextDef.Stage, nextDef.Fields[0].Name, true
}
