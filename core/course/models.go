package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/soko/core"
)

type Course struct {
	ID          string     `json:"id"`
	Author      string     `json:"author"`
	Title       string     `json:"title"`
	StartDate   time.Time  `json:"start_date"`
	Price       core.Money `json:"price"`
	IsAvailable bool       `json:"is_available"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// Detail is a Course along with its lessons & sales figures.
type Detail struct {
	Course
	Stats
	Lessons []Lesson `json:"lessons,omitempty"`
}

// Stats are the sales figures of a Course.
type Stats struct {
	LessonsCount        int     `json:"lessons_count"`
	StudentsCount       int     `json:"students_count"`
	GroupsFilledPercent float64 `json:"groups_filled_percent"`
	DemandCoursePercent float64 `json:"demand_course_percent"`
}

type Lesson struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Group struct {
	ID            string    `json:"id"`
	CourseID      string    `json:"course_id"`
	Title         string    `json:"title"`
	StudentsCount int       `json:"students_count"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// GroupStudent is a member of a Group.
type GroupStudent struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joined_at"` // UTC
}

type GroupDetail struct {
	Group
	Students []GroupStudent `json:"students"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Author      string     `json:"author" validate:"required,max=250"`
	Title       string     `json:"title" validate:"required,max=250"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	Price       core.Money `json:"price" validate:"gte=0"`
	IsAvailable *bool      `json:"is_available"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Author = core.CleanString(nc.Author)
	nc.Title = core.CleanString(nc.Title)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Author      string      `json:"author" validate:"max=250"`
	Title       string      `json:"title" validate:"max=250"`
	StartDate   *time.Time  `json:"start_date"`
	Price       *core.Money `json:"price" validate:"omitempty,gte=0"`
	IsAvailable *bool       `json:"is_available"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Author = core.CleanString(uc.Author)
	uc.Title = core.CleanString(uc.Title)
	return validate.Struct(uc)
}

type NewLesson struct {
	Title string `json:"title" validate:"required,max=250"`
	Link  string `json:"link" validate:"required,url,max=250"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Link = core.CleanString(nl.Link)
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title string `json:"title" validate:"max=250"`
	Link  string `json:"link" validate:"omitempty,url,max=250"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	ul.Title = core.CleanString(ul.Title)
	ul.Link = core.CleanString(ul.Link)
	return validate.Struct(ul)
}

type NewGroup struct {
	Title string `json:"title" validate:"required,max=250"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Title = core.CleanString(ng.Title)
	return validate.Struct(ng)
}

type QueryFilter struct {
	Search    string `query:"search"`
	Available *bool  `query:"available"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
