package http

import (
	"time"

	"github.com/cimillas/library-lending/internal/domain"
)

const dateLayout = "2006-01-02"

type bookRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"required,max=255"`
	ISBN          string `json:"isbn" validate:"required,max=32"`
	Genre         string `json:"genre" validate:"max=100"`
	TotalQuantity int    `json:"total_quantity" validate:"required,min=1"`
}

type bookResponse struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn"`
	Genre             string    `json:"genre,omitempty"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toBookResponse(b domain.Book) bookResponse {
	return bookResponse{
		ID:                b.ID,
		Title:             b.Title,
		Author:            b.Author,
		ISBN:              b.ISBN,
		Genre:             b.Genre,
		TotalQuantity:     b.TotalQuantity,
		AvailableQuantity: b.AvailableQuantity,
		Status:            string(b.Status()),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

type availabilityResponse struct {
	BookID    int64 `json:"book_id"`
	Available bool  `json:"available"`
}

type checkoutRequest struct {
	BookID    int64 `json:"book_id" validate:"required,gt=0"`
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

type loanResponse struct {
	ID                int64      `json:"id"`
	BookID            int64      `json:"book_id"`
	StudentID         int64      `json:"student_id"`
	CheckOutDate      time.Time  `json:"check_out_date"`
	DueDate           time.Time  `json:"due_date"`
	ReturnDate        *time.Time `json:"return_date,omitempty"`
	Status            string     `json:"status"`
	LibrarianCheckout string     `json:"librarian_checkout,omitempty"`
	LibrarianCheckin  string     `json:"librarian_checkin,omitempty"`
}

func toLoanResponse(l domain.Loan) loanResponse {
	return loanResponse{
		ID:                l.ID,
		BookID:            l.BookID,
		StudentID:         l.StudentID,
		CheckOutDate:      l.CheckOutDate,
		DueDate:           l.DueDate,
		ReturnDate:        l.ReturnDate,
		Status:            string(l.Status),
		LibrarianCheckout: l.LibrarianCheckout,
		LibrarianCheckin:  l.LibrarianCheckin,
	}
}

func toLoanResponses(loans []domain.Loan) []loanResponse {
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l))
	}
	return out
}

type reservationRequest struct {
	BookID    int64 `json:"book_id" validate:"required,gt=0"`
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	// ReservationDate is optional, formatted as YYYY-MM-DD.
	ReservationDate string `json:"reservation_date" validate:"omitempty,datetime=2006-01-02"`
}

func (r reservationRequest) date() *time.Time {
	if r.ReservationDate == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, r.ReservationDate)
	if err != nil {
		return nil
	}
	return &d
}

type reservationResponse struct {
	ID              int64      `json:"id"`
	BookID          int64      `json:"book_id"`
	StudentID       int64      `json:"student_id"`
	ReservationDate string     `json:"reservation_date"`
	Status          string     `json:"status"`
	ProcessedDate   *time.Time `json:"processed_date,omitempty"`
	ProcessedBy     string     `json:"processed_by,omitempty"`
}

func toReservationResponse(r domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		BookID:          r.BookID,
		StudentID:       r.StudentID,
		ReservationDate: r.ReservationDate.Format(dateLayout),
		Status:          string(r.Status),
		ProcessedDate:   r.ProcessedDate,
		ProcessedBy:     r.ProcessedBy,
	}
}

func toReservationResponses(rs []domain.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReservationResponse(r))
	}
	return out
}

type sweepResponse struct {
	Marked int `json:"marked"`
}
