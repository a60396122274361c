package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCourseJSON(t *testing.T) {
	// Semester and level are catalogue labels, not numbers: they marshal as
	// strings and a seed-style literal round-trips unchanged.
	c := Course{Code: "CSM101", Title: "Introduction to Computer Science", Credits: 3, Semester: "1", Level: "100", Lecturer: "Dr. Mensah"}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"semester":"1"`) {
		t.Fatalf("semester not encoded as a string: %s", data)
	}
	if !strings.Contains(string(data), `"level":"100"`) {
		t.Fatalf("level not encoded as a string: %s", data)
	}

	var back Course
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != c {
		t.Fatalf("round trip changed the course: %+v != %+v", back, c)
	}
}
