package payment

import "strconv"

// StudentID is the structured identifier typed at the booth: one digit of
// grade, one digit of room, two digits of number.
type StudentID struct {
	Grade  int
	Room   int
	Number int
}

// ParseStudentID validates a 4-character student id such as "2314".
func ParseStudentID(code string) (StudentID, error) {
	if len(code) != 4 {
		return StudentID{}, ErrIdentifierLength
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return StudentID{}, ErrIdentifierDigits
		}
	}

	grade, _ := strconv.Atoi(code[0:1])
	room, _ := strconv.Atoi(code[1:2])
	number, _ := strconv.Atoi(code[2:4])

	switch {
	case grade < 1 || grade > 9:
		return StudentID{}, ErrInvalidGrade
	case room < 1 || room > 9:
		return StudentID{}, ErrInvalidRoom
	case number < 1 || number > 99:
		return StudentID{}, ErrInvalidNumber
	}

	return StudentID{Grade: grade, Room: room, Number: number}, nil
}
