package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    Value
		wantErr bool
	}{
		{`"abc"`, Text("abc"), false},
		{`""`, Text(""), false},
		{`12.5`, Number(12.5), false},
		{`-3`, Number(-3), false},
		{`true`, Boolean(true), false},
		{`false`, Boolean(false), false},
		{`null`, nil, false},
		{`{"a": 1}`, nil, true},
		{`[1]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseValue(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseValue(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseValue(%s) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     ColumnType
		v       Value
		wantErr bool
	}{
		{"empty is always fine", ColumnNumber, Text(""), false},
		{"nil is always fine", ColumnBoolean, nil, false},
		{"text", ColumnText, Text("x"), false},
		{"text rejects number", ColumnText, Number(1), true},
		{"number", ColumnNumber, Number(4), false},
		{"number rejects text", ColumnNumber, Text("four"), true},
		{"boolean", ColumnBoolean, Boolean(true), false},
		{"email", ColumnEmail, Text("a@b.com"), false},
		{"bad email", ColumnEmail, Text("nope"), true},
		{"date", ColumnDate, Text("2024-09-01"), false},
		{"bad date", ColumnDate, Text("01/09/2024"), true},
		{"unknown type", ColumnType("money"), Number(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckValue(tt.typ, tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckValue(%s, %#v) error = %v, wantErr %v", tt.typ, tt.v, err, tt.wantErr)
			}
		})
	}
}

func TestRowDataEqual(t *testing.T) {
	a := RowData{"col-0": Text("x"), "col-1": Text("")}
	b := RowData{"col-0": Text("x")}
	if !a.Equal(b) {
		t.Error("absent and empty cells should compare equal")
	}
	if a.Equal(RowData{"col-0": Text("y")}) {
		t.Error("different text should not compare equal")
	}
	if (RowData{"col-0": Number(1)}).Equal(RowData{"col-0": Text("1")}) {
		t.Error("number and text should not compare equal")
	}
	if !RowData(nil).Equal(RowData{}) {
		t.Error("nil and empty data should compare equal")
	}
}

func TestRowJSON(t *testing.T) {
	in := []byte(`{"id": "row-1", "firstName": "Ann", "lastName": "Lee", "email": "ann@x.com",
		"password": "secret1", "col-0": "A", "col-1": 3, "col-2": null}`)
	var r Row
	if err := json.Unmarshal(in, &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.ID != "row-1" || r.FirstName != "Ann" || r.Email != "ann@x.com" || r.Password != "secret1" {
		t.Errorf("unexpected identity fields: %+v", r)
	}
	if len(r.Data) != 2 || r.Data["col-0"] != Text("A") || r.Data["col-1"] != Number(3) {
		t.Errorf("unexpected data: %#v", r.Data)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(out, &flat); err != nil {
		t.Fatal(err)
	}
	if _, ok := flat["password"]; ok {
		t.Error("password must not be serialized")
	}
	if flat["col-1"] != float64(3) {
		t.Errorf("col-1 = %v, want 3", flat["col-1"])
	}

	var bad Row
	if err := json.Unmarshal([]byte(`{"email": 5}`), &bad); err == nil {
		t.Error("expected error for non-string identity field")
	}
}

func TestTableClone(t *testing.T) {
	orig := &Table{
		ID:      "t1",
		Columns: []Column{{ID: "col-0", Name: "Group", Type: ColumnText}},
		Rows:    []Row{{ID: "s1", Data: RowData{"col-0": Text("A")}}},
	}
	c := orig.Clone()
	c.Columns[0].Name = "Team"
	c.Rows[0].Data["col-0"] = Text("B")
	if orig.Columns[0].Name != "Group" || orig.Rows[0].Data["col-0"] != Text("A") {
		t.Error("clone shares state with the original")
	}

	d := orig.Draft()
	if d.BaseVersion != orig.Version || len(d.Rows) != 1 {
		t.Errorf("unexpected draft: %+v", d)
	}
}

func TestErrors(t *testing.T) {
	if !errors.Is(NotFoundf("table %s", "x"), ErrNotFound) {
		t.Error("NotFoundf should wrap ErrNotFound")
	}
	if !errors.Is(Conflictf("email"), ErrConflict) {
		t.Error("Conflictf should wrap ErrConflict")
	}
	inner := errors.New("disk full")
	te := &TransactionError{Op: "commit", Err: inner}
	if !errors.Is(te, inner) {
		t.Error("TransactionError should unwrap")
	}
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(Question{Kind: "riddle", MaxPoints: -1})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"text", "kind", "maxPoints"} {
		if !fields[want] {
			t.Errorf("missing field error for %s in %v", want, ve.Fields)
		}
	}

	if err := ValidateStruct(Question{Text: "ok"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestQuestionImportToQuestion(t *testing.T) {
	q := QuestionImport{Text: "  What is Go?  ", Kind: KindEssay, MaxPoints: 5}.ToQuestion()
	if q.Text != "What is Go?" || q.Kind != KindEssay || q.MaxPoints != 5 {
		t.Errorf("unexpected question: %+v", q)
	}
}
