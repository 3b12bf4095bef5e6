// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package demo populates a database with people and the towns they live in,
// and runs a few nested queries over them.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/canonical/sqlcrud"
)

type Person struct {
	ID         int    `db:"id"`
	Name       string `db:"name"`
	Height     int    `db:"height_cm"`
	HomeTownID int    `db:"home_town_id"`
	Languages  []Language
}

type Place struct {
	ID         int    `db:"id"`
	Name       string `db:"town_name"`
	Population int    `db:"population"`
	Residents  []Person
}

type Language struct {
	Code string `db:"code"`
	Name string `db:"name"`
}

type Speaker struct {
	PersonID int    `db:"person_id"`
	Code     string `db:"language_code"`
}

var (
	People = []Person{
		{ID: 1, Name: "Jim", Height: 150, HomeTownID: 1},
		{ID: 2, Name: "Saba", Height: 162, HomeTownID: 2},
		{ID: 3, Name: "Dave", Height: 169, HomeTownID: 3},
		{ID: 4, Name: "Sophie", Height: 174, HomeTownID: 2},
		{ID: 5, Name: "Kiri", Height: 168, HomeTownID: 4},
	}
	Places = []Place{
		{ID: 1, Name: "Kabul", Population: 13000000},
		{ID: 2, Name: "Berlin", Population: 3677472},
		{ID: 3, Name: "Brasília", Population: 3039444},
		{ID: 4, Name: "Cape Town", Population: 4710000},
	}
	Languages = []Language{
		{Code: "de", Name: "German"},
		{Code: "en", Name: "English"},
		{Code: "fa", Name: "Persian"},
		{Code: "pt", Name: "Portuguese"},
	}
	Speakers = []Speaker{
		{PersonID: 1, Code: "fa"},
		{PersonID: 1, Code: "en"},
		{PersonID: 2, Code: "de"},
		{PersonID: 3, Code: "pt"},
		{PersonID: 4, Code: "de"},
		{PersonID: 4, Code: "en"},
		{PersonID: 5, Code: "en"},
	}
)

var (
	personID     = func(p *Person) *int { return &p.ID }
	personHeight = func(p *Person) *int { return &p.Height }
	placeID      = func(p *Place) *int { return &p.ID }
)

// Setup creates the demo tables, dropping any existing ones, and fills
// them.
func Setup(ctx context.Context, q sqlcrud.Querier) error {
	for _, create := range []func(context.Context, sqlcrud.Querier, sqlcrud.CreatePolicy) error{
		sqlcrud.CreateTable[Person],
		sqlcrud.CreateTable[Place],
		sqlcrud.CreateTable[Language],
		sqlcrud.CreateTable[Speaker],
	} {
		if err := create(ctx, q, sqlcrud.DropTable); err != nil {
			return err
		}
	}
	err := sqlcrud.CreateIndex[Person](ctx, q, false, func(p *Person) any { return &p.HomeTownID })
	if err != nil {
		return err
	}
	if _, err := sqlcrud.Table[Person](q).Insert(ctx, People...); err != nil {
		return err
	}
	if _, err := sqlcrud.Table[Place](q).Insert(ctx, Places...); err != nil {
		return err
	}
	if _, err := sqlcrud.Table[Language](q).Insert(ctx, Languages...); err != nil {
		return err
	}
	_, err = sqlcrud.Table[Speaker](q).Insert(ctx, Speakers...)
	return err
}

// TallerThan returns the people taller than p, shortest first, with the
// languages they speak.
func TallerThan(ctx context.Context, q sqlcrud.Querier, p Person) ([]Person, error) {
	return sqlcrud.JoinPivot(
		sqlcrud.Table[Person](q).
			Where(sqlcrud.Gt(personHeight, p.Height)).
			Order(func(p *Person) any { return &p.Height }),
		func(p *Person) *[]Language { return &p.Languages },
		personID,
		func(s *Speaker) *int { return &s.PersonID },
		func(s *Speaker) *string { return &s.Code },
		func(l *Language) *string { return &l.Code },
	).Order(func(l *Language) any { return &l.Name }).All(ctx)
}

// TownsWithTallerResidents returns the towns where someone taller than p
// lives, with those residents.
func TownsWithTallerResidents(ctx context.Context, q sqlcrud.Querier, p Person) ([]Place, error) {
	places, err := sqlcrud.Join(
		sqlcrud.Table[Place](q).Order(func(p *Place) any { return &p.Name }),
		func(p *Place) *[]Person { return &p.Residents },
		placeID,
		func(p *Person) *int { return &p.HomeTownID },
	).Where(sqlcrud.Gt(personHeight, p.Height)).
		Order(func(p *Person) any { return &p.Name }).
		All(ctx)
	if err != nil {
		return nil, err
	}
	var towns []Place
	for _, place := range places {
		if len(place.Residents) > 0 {
			towns = append(towns, place)
		}
	}
	return towns, nil
}

// Report is the outcome of Run.
type Report struct {
	Reference string   `yaml:"reference"`
	Taller    []Taller `yaml:"taller"`
	Towns     []Town   `yaml:"towns"`
	People    int64    `yaml:"people"`
}

type Taller struct {
	Name      string   `yaml:"name"`
	Height    int      `yaml:"height_cm"`
	Languages []string `yaml:"languages"`
}

type Town struct {
	Name      string   `yaml:"name"`
	Residents []string `yaml:"residents"`
}

// Run sets up the demo tables on db and queries them for the people taller
// than Jim.
func Run(ctx context.Context, db *sqlcrud.DB) (*Report, error) {
	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := Setup(ctx, tx); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	jim := People[0]
	report := &Report{Reference: jim.Name}
	taller, err := TallerThan(ctx, db, jim)
	if err != nil {
		return nil, err
	}
	for _, p := range taller {
		t := Taller{Name: p.Name, Height: p.Height}
		for _, l := range p.Languages {
			t.Languages = append(t.Languages, l.Name)
		}
		report.Taller = append(report.Taller, t)
	}
	towns, err := TownsWithTallerResidents(ctx, db, jim)
	if err != nil {
		return nil, err
	}
	for _, place := range towns {
		t := Town{Name: place.Name}
		for _, p := range place.Residents {
			t.Residents = append(t.Residents, p.Name)
		}
		report.Towns = append(report.Towns, t)
	}
	if report.People, err = sqlcrud.Table[Person](db).Count(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// Print writes r in plain text.
func (r *Report) Print(w io.Writer) {
	for _, t := range r.Taller {
		fmt.Fprintf(w, "%s is taller than %s and speaks %v.\n", t.Name, r.Reference, t.Languages)
	}
	for _, t := range r.Towns {
		fmt.Fprintf(w, "%s is home to %v.\n", t.Name, t.Residents)
	}
	fmt.Fprintf(w, "%d people in total.\n", r.People)
}
