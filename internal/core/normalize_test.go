package core

import "testing"

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Città", "citta"},
		{"citta", "citta"},
		{" CITTA ", "citta"},
		{"CITTÀ", "citta"},
		{"E-mail 2", "e mail 2"},
		{"Ragione  Sociale", "ragione sociale"},
		{"Cellulare (2)", "cellulare 2"},
		{"Data Follow-Up 1", "data follow up 1"},
		{"phone_1", "phone_1"},
		{"Nome!!", "nome"},
		{"---", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHeader(tt.input); got != tt.want {
				t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeHeader_Idempotent(t *testing.T) {
	inputs := []string{"Città", "citta", " CITTA "}
	want := NormalizeHeader(inputs[0])

	for _, in := range inputs {
		got := NormalizeHeader(in)
		if got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
		if again := NormalizeHeader(got); again != got {
			t.Errorf("NormalizeHeader not idempotent: %q -> %q", got, again)
		}
		if f, ok := ResolveHeader(got); !ok || f != FieldCity {
			t.Errorf("ResolveHeader(%q) = %q, %v, want city", got, f, ok)
		}
	}
}

func TestResolveRawHeader(t *testing.T) {
	tests := []struct {
		header string
		want   Field
		ok     bool
	}{
		{"Nome", FieldName, true},
		{"Ragione Sociale", FieldName, true},
		{"Sito Web", FieldSite, true},
		{"Email", FieldEmail1, true},
		{"E-mail 2", FieldEmail2, true},
		{"email3", FieldEmail3, true},
		{"Cellulare", FieldPhone1, true},
		{"GSM", FieldPhone1, true},
		{"Mobile 2", FieldPhone2, true},
		{"Telefono 3", FieldPhone3, true},
		{"Latitudine", FieldLatitude, true},
		{"LNG", FieldLongitude, true},
		{"Assegnatario", FieldAssign, true},
		{"Metodo contatto", FieldContactMethod, true},
		{"Data inizio", FieldDataStart, true},
		{"Follow-up 2", FieldDataFollowUp2, true},
		{"Stato", FieldStatus, true},
		{"Note", FieldNote, true},
		{"id", "", false},
		{"Fatturato", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := ResolveRawHeader(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ResolveRawHeader(%q) = %q, %v, want %q, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSynonymTable(t *testing.T) {
	// Every canonical column name must resolve to itself so exported files
	// and templates import cleanly.
	for _, f := range RequiredFields {
		got, ok := ResolveHeader(string(f))
		if !ok || got != f {
			t.Errorf("ResolveHeader(%q) = %q, %v, want itself", f, got, ok)
		}
	}

	seen := make(map[string]Field)
	for field, labels := range headerSynonyms {
		if _, ok := Spec(field); !ok {
			t.Errorf("synonyms listed for unregistered field %q", field)
		}
		for _, label := range labels {
			if NormalizeHeader(label) != label {
				t.Errorf("synonym %q for %s is not normalized", label, field)
			}
			if prev, dup := seen[label]; dup {
				t.Errorf("synonym %q maps to both %s and %s", label, prev, field)
			}
			seen[label] = field

			if got, ok := ResolveHeader(label); !ok || got != field {
				t.Errorf("ResolveHeader(%q) = %q, %v, want %s", label, got, ok, field)
			}
		}
	}

	if len(seen) != len(headerIndex) {
		t.Errorf("index has %d entries, table has %d", len(headerIndex), len(seen))
	}
}

func TestBuildHeaderIndex_PanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate synonym")
		}
	}()
	buildHeaderIndex(map[Field][]string{
		FieldPhone1: {"cell"},
		FieldPhone2: {"cell"},
	})
}
