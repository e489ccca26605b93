package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survey.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "age,gender,score\n20,f,3.5\n25,m,NA\n30,f,4.0\n")

	ds, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if ds.Name != "survey" {
		t.Errorf("Name = %q, want survey", ds.Name)
	}

	age, err := ds.NumericColumn("age")
	if err != nil {
		t.Fatalf("age column: %v", err)
	}
	if len(age) != 3 || age[0] != 20 || age[2] != 30 {
		t.Errorf("age = %v", age)
	}

	score, err := ds.NumericColumn("score")
	if err != nil {
		t.Fatalf("score column: %v", err)
	}
	if !math.IsNaN(score[1]) {
		t.Errorf("missing numeric value = %v, want NaN", score[1])
	}

	gender, err := ds.CategoricalColumn("gender")
	if err != nil {
		t.Fatalf("gender column: %v", err)
	}
	if gender[0] != "f" || gender[1] != "m" {
		t.Errorf("gender = %v", gender)
	}
}

func TestLoadCSVMixedColumnIsCategorical(t *testing.T) {
	path := writeCSV(t, "code\n12\nabc\n34\n")

	ds, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if _, err := ds.NumericColumn("code"); err == nil {
		t.Error("mixed column should not be numeric")
	}
	if _, err := ds.CategoricalColumn("code"); err != nil {
		t.Errorf("mixed column should be categorical: %v", err)
	}
}

func TestLoadCSVNoRows(t *testing.T) {
	path := writeCSV(t, "age,gender\n")
	if _, err := LoadCSV(path); err == nil {
		t.Error("headers without data rows should fail")
	}
}
