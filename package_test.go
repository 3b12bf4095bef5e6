// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud_test

import (
	"context"
	"database/sql"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlcrud"
)

type PackageSuite struct {
	sqldb *sql.DB
	db    *sqlcrud.DB
}

var _ = Suite(&PackageSuite{})

type Person struct {
	ID        int     `db:"id"`
	Name      string  `db:"name"`
	Age       *int    `db:"age"`
	Addresses []Address
	Tags      []Tag
}

type Address struct {
	ID       int    `db:"id"`
	PersonID int    `db:"person_id"`
	Street   string `db:"street"`
}

type Tag struct {
	ID    uuid.UUID `db:"id"`
	Label string    `db:"label"`
}

type PersonTag struct {
	PersonID int       `db:"person_id"`
	TagID    uuid.UUID `db:"tag_id"`
}

func (PersonTag) TableName() string { return "person_tag" }

var (
	personID     = func(p *Person) *int { return &p.ID }
	personName   = func(p *Person) *string { return &p.Name }
	personAge    = func(p *Person) **int { return &p.Age }
	addressPerID = func(a *Address) *int { return &a.PersonID }
	addressID    = func(a *Address) *int { return &a.ID }
	addresses    = func(p *Person) *[]Address { return &p.Addresses }
	tags         = func(p *Person) *[]Tag { return &p.Tags }
	tagID        = func(t *Tag) *uuid.UUID { return &t.ID }
	pivotPerson  = func(pt *PersonTag) *int { return &pt.PersonID }
	pivotTag     = func(pt *PersonTag) *uuid.UUID { return &pt.TagID }
)

func byID(p *Person) any { return &p.ID }

func age(n int) *int { return &n }

var (
	red   = Tag{ID: uuid.MustParse("6f1c1e0a-5a6b-4b8e-9a47-0b3a7a0f0001"), Label: "red"}
	green = Tag{ID: uuid.MustParse("6f1c1e0a-5a6b-4b8e-9a47-0b3a7a0f0002"), Label: "green"}
	blue  = Tag{ID: uuid.MustParse("6f1c1e0a-5a6b-4b8e-9a47-0b3a7a0f0003"), Label: "blue"}
)

func (s *PackageSuite) SetUpTest(c *C) {
	name := c.TestName()
	var err error
	s.sqldb, err = sql.Open(sqlcrud.TrackedDriverName, "file:"+name+".db?cache=shared&mode=memory&testName="+name)
	c.Assert(err, IsNil)
	s.db = sqlcrud.NewDB(s.sqldb)
	ctx := context.Background()
	c.Assert(sqlcrud.CreateTable[Person](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateTable[Address](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateTable[Tag](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateTable[PersonTag](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateIndex[Address](ctx, s.db, false, func(a *Address) any { return &a.PersonID }), IsNil)
}

func (s *PackageSuite) TearDownTest(c *C) {
	// Every query must have released its connection.
	c.Check(s.sqldb.Stats().InUse, Equals, 0)
	s.db, s.sqldb = nil, nil
	for i := 0; i <= 10; i++ {
		runtime.GC()
		time.Sleep(0)
	}
	c.Check(sqlcrud.StmtsLeaked(c.TestName()), HasLen, 0)
}

func (s *PackageSuite) TearDownSuite(_ *C) {
	sqlcrud.ResetDriverStats()
}

// insertFixtures inserts three people: Fred with two addresses and the tags
// red and green, Mark with nothing, Mary with one address and the tag red.
func (s *PackageSuite) insertFixtures(c *C) {
	ctx := context.Background()
	n, err := sqlcrud.Table[Person](s.db).Insert(ctx,
		Person{ID: 1, Name: "Fred", Age: age(30)},
		Person{ID: 2, Name: "Mark"},
		Person{ID: 3, Name: "Mary", Age: age(40)},
	)
	c.Assert(err, IsNil)
	c.Assert(n, Equals, int64(3))
	_, err = sqlcrud.Table[Address](s.db).Insert(ctx,
		Address{ID: 10, PersonID: 1, Street: "Main Street"},
		Address{ID: 11, PersonID: 3, Street: "Church Road"},
		Address{ID: 12, PersonID: 1, Street: "Station Lane"},
		Address{ID: 13, PersonID: 99, Street: "Nowhere"},
	)
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[Tag](s.db).Insert(ctx, red, green, blue)
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[PersonTag](s.db).Insert(ctx,
		PersonTag{PersonID: 1, TagID: red.ID},
		PersonTag{PersonID: 1, TagID: green.ID},
		PersonTag{PersonID: 3, TagID: red.ID},
		PersonTag{PersonID: 98, TagID: blue.ID},
	)
	c.Assert(err, IsNil)
}

func (s *PackageSuite) TestSelect(c *C) {
	s.insertFixtures(c)
	people, err := sqlcrud.Table[Person](s.db).Order(byID).All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{
		{ID: 1, Name: "Fred", Age: age(30)},
		{ID: 2, Name: "Mark"},
		{ID: 3, Name: "Mary", Age: age(40)},
	})
}

func (s *PackageSuite) TestWhere(c *C) {
	s.insertFixtures(c)
	var tests = []struct {
		summary string
		where   sqlcrud.Expr
		ids     []int
	}{{
		summary: "equality",
		where:   sqlcrud.Eq(personName, "Mark"),
		ids:     []int{2},
	}, {
		summary: "comparison",
		where:   sqlcrud.Ge(personID, 2),
		ids:     []int{2, 3},
	}, {
		summary: "in",
		where:   sqlcrud.In(personID, 1, 3, 5),
		ids:     []int{1, 3},
	}, {
		summary: "empty in",
		where:   sqlcrud.In(personID),
		ids:     nil,
	}, {
		summary: "like",
		where:   sqlcrud.Like(personName, "M%"),
		ids:     []int{2, 3},
	}, {
		summary: "null",
		where:   sqlcrud.IsNull(personAge),
		ids:     []int{2},
	}, {
		summary: "not null",
		where:   sqlcrud.IsNotNull(personAge),
		ids:     []int{1, 3},
	}, {
		summary: "or",
		where:   sqlcrud.Or(sqlcrud.Eq(personID, 1), sqlcrud.Eq(personName, "Mary")),
		ids:     []int{1, 3},
	}, {
		summary: "not and",
		where:   sqlcrud.Not(sqlcrud.And(sqlcrud.Gt(personID, 1), sqlcrud.Lt(personID, 3))),
		ids:     []int{1, 3},
	}, {
		summary: "pointer field",
		where:   sqlcrud.Eq(personAge, age(40)),
		ids:     []int{3},
	}}
	for _, t := range tests {
		people, err := sqlcrud.Table[Person](s.db).Where(t.where).Order(byID).All(context.Background())
		c.Assert(err, IsNil, Commentf("test %q failed", t.summary))
		var ids []int
		for _, p := range people {
			ids = append(ids, p.ID)
		}
		c.Check(ids, DeepEquals, t.ids, Commentf("test %q failed", t.summary))
	}
}

func (s *PackageSuite) TestWhereCombined(c *C) {
	s.insertFixtures(c)
	people, err := sqlcrud.Table[Person](s.db).
		Where(sqlcrud.Gt(personID, 1)).
		Where(sqlcrud.Like(personName, "Ma%")).
		Order(byID).
		All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 2)
	c.Check(people[0].Name, Equals, "Mark")
	c.Check(people[1].Name, Equals, "Mary")
}

func (s *PackageSuite) TestOrderLimit(c *C) {
	ctx := context.Background()
	_, err := sqlcrud.Table[Person](s.db).Insert(ctx,
		Person{ID: 3, Name: "c"},
		Person{ID: 1, Name: "a"},
		Person{ID: 2, Name: "b"},
	)
	c.Assert(err, IsNil)

	p, err := sqlcrud.Table[Person](s.db).Order(byID).Limit(1, 1).All(ctx)
	c.Assert(err, IsNil)
	c.Assert(p, DeepEquals, []Person{{ID: 2, Name: "b"}})

	var tests = []struct {
		summary string
		query   sqlcrud.Chain[Person, Person]
		names   []string
	}{{
		summary: "limit",
		query:   sqlcrud.Table[Person](s.db).Order(byID).Limit(2, 0),
		names:   []string{"a", "b"},
	}, {
		summary: "skip only",
		query:   sqlcrud.Table[Person](s.db).Order(byID).Limit(0, 1),
		names:   []string{"b", "c"},
	}, {
		summary: "skip past the end",
		query:   sqlcrud.Table[Person](s.db).Order(byID).Limit(2, 5),
		names:   nil,
	}, {
		summary: "descending",
		query:   sqlcrud.Table[Person](s.db).OrderDesc(byID),
		names:   []string{"c", "b", "a"},
	}, {
		summary: "last limit wins",
		query:   sqlcrud.Table[Person](s.db).Order(byID).Limit(1, 0).Limit(2, 1),
		names:   []string{"b", "c"},
	}, {
		summary: "earlier ordering takes precedence",
		query: sqlcrud.Table[Person](s.db).
			OrderDesc(byID).
			Order(func(p *Person) any { return &p.Age }),
		names: []string{"c", "b", "a"},
	}}
	for _, t := range tests {
		people, err := t.query.All(ctx)
		c.Assert(err, IsNil, Commentf("test %q failed", t.summary))
		var names []string
		for _, p := range people {
			names = append(names, p.Name)
		}
		c.Check(names, DeepEquals, t.names, Commentf("test %q failed", t.summary))
	}
}

func (s *PackageSuite) TestIncludeExclude(c *C) {
	s.insertFixtures(c)
	ctx := context.Background()
	people, err := sqlcrud.Table[Person](s.db).
		Include(func(p *Person) any { return &p.Name }).
		Where(sqlcrud.Eq(personID, 1)).
		All(ctx)
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{{Name: "Fred"}})

	people, err = sqlcrud.Table[Person](s.db).
		Exclude(func(p *Person) any { return &p.Age }).
		Where(sqlcrud.Eq(personID, 1)).
		All(ctx)
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{{ID: 1, Name: "Fred"}})
}

func (s *PackageSuite) TestCount(c *C) {
	s.insertFixtures(c)
	ctx := context.Background()

	n, err := sqlcrud.Table[Person](s.db).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))

	n, err = sqlcrud.Table[Person](s.db).Where(sqlcrud.Gt(personID, 1)).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	n, err = sqlcrud.Table[Person](s.db).Where(sqlcrud.Gt(personID, 10)).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))

	n, err = sqlcrud.Table[Person](s.db).Order(byID).Limit(2, 2).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
}

func (s *PackageSuite) TestCountWithJoinFails(c *C) {
	s.insertFixtures(c)
	onConn, onStmt := sqlcrud.QueriesRun(c.TestName())

	_, err := sqlcrud.Join(sqlcrud.Table[Person](s.db), addresses, personID, addressPerID).
		Count(context.Background())
	c.Assert(err, ErrorMatches, "cannot generate query: .*")
	c.Check(sqlcrud.IsGenerationError(err), Equals, true)

	// Nothing was run.
	onConnAfter, onStmtAfter := sqlcrud.QueriesRun(c.TestName())
	c.Check(onConnAfter, Equals, onConn)
	c.Check(onStmtAfter, Equals, onStmt)
}

func (s *PackageSuite) TestJoin(c *C) {
	s.insertFixtures(c)
	people, err := sqlcrud.Join(
		sqlcrud.Table[Person](s.db).Order(byID),
		addresses, personID, addressPerID,
	).Order(func(a *Address) any { return &a.ID }).All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{{
		ID: 1, Name: "Fred", Age: age(30),
		Addresses: []Address{{ID: 10, PersonID: 1, Street: "Main Street"}, {ID: 12, PersonID: 1, Street: "Station Lane"}},
	}, {
		ID: 2, Name: "Mark",
		Addresses: []Address{},
	}, {
		ID: 3, Name: "Mary", Age: age(40),
		Addresses: []Address{{ID: 11, PersonID: 3, Street: "Church Road"}},
	}})
	// Loaded but empty is not the same as not loaded.
	c.Check(people[1].Addresses, NotNil)
	c.Check(people[1].Tags, IsNil)
}

func (s *PackageSuite) TestJoinFilters(c *C) {
	s.insertFixtures(c)
	people, err := sqlcrud.Join(
		sqlcrud.Table[Person](s.db).Where(sqlcrud.Ne(personID, 3)).Order(byID),
		addresses, personID, addressPerID,
	).Where(sqlcrud.Like(func(a *Address) *string { return &a.Street }, "Station%")).
		All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 2)
	c.Check(people[0].Addresses, DeepEquals, []Address{{ID: 12, PersonID: 1, Street: "Station Lane"}})
	c.Check(people[1].Addresses, DeepEquals, []Address{})
}

func (s *PackageSuite) TestJoinPivot(c *C) {
	s.insertFixtures(c)
	people, err := sqlcrud.JoinPivot(
		sqlcrud.Table[Person](s.db).Order(byID),
		tags, personID, pivotPerson, pivotTag, tagID,
	).OrderDesc(func(t *Tag) any { return &t.Label }).All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 3)
	c.Check(people[0].Tags, DeepEquals, []Tag{red, green})
	c.Check(people[1].Tags, DeepEquals, []Tag{})
	c.Check(people[2].Tags, DeepEquals, []Tag{red})
	c.Check(people[0].Addresses, IsNil)
}

func (s *PackageSuite) TestJoinBoth(c *C) {
	s.insertFixtures(c)
	query := sqlcrud.JoinPivot(
		sqlcrud.Join(
			sqlcrud.Table[Person](s.db).Where(sqlcrud.Eq(personName, "Fred")),
			addresses, personID, addressPerID,
		).Order(func(a *Address) any { return &a.ID }),
		tags, personID, pivotPerson, pivotTag, tagID,
	).Order(func(t *Tag) any { return &t.Label })

	expected := []Person{{
		ID: 1, Name: "Fred", Age: age(30),
		Addresses: []Address{{ID: 10, PersonID: 1, Street: "Main Street"}, {ID: 12, PersonID: 1, Street: "Station Lane"}},
		Tags:      []Tag{green, red},
	}}
	people, err := query.All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, expected)

	// Joined tables loaded concurrently give the same result.
	parallel := sqlcrud.NewDB(s.sqldb, sqlcrud.WithParallelPrefetch(true))
	people, err = sqlcrud.JoinPivot(
		sqlcrud.Join(
			sqlcrud.Table[Person](parallel).Where(sqlcrud.Eq(personName, "Fred")),
			addresses, personID, addressPerID,
		).Order(func(a *Address) any { return &a.ID }),
		tags, personID, pivotPerson, pivotTag, tagID,
	).Order(func(t *Tag) any { return &t.Label }).All(context.Background())
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, expected)
}

func (s *PackageSuite) TestSelfJoinFilter(c *C) {
	type Node struct {
		ID       int `db:"id"`
		ParentID int `db:"parent_id"`
		Children []Node
	}
	nodeID := func(n *Node) *int { return &n.ID }

	// A type registered twice cannot be referenced by a filter.
	_, err := sqlcrud.Join(
		sqlcrud.Table[Node](s.db),
		func(n *Node) *[]Node { return &n.Children },
		nodeID,
		func(n *Node) *int { return &n.ParentID },
	).Where(sqlcrud.Eq(nodeID, 2)).All(context.Background())
	c.Assert(err, ErrorMatches, `cannot generate query: type "Node" is registered more than once.*`)
}

func (s *PackageSuite) TestFirst(c *C) {
	s.insertFixtures(c)
	ctx := context.Background()

	p, err := sqlcrud.Table[Person](s.db).OrderDesc(byID).First(ctx)
	c.Assert(err, IsNil)
	c.Check(p.Name, Equals, "Mary")

	p, err = sqlcrud.Join(sqlcrud.Table[Person](s.db).Order(byID), addresses, personID, addressPerID).First(ctx)
	c.Assert(err, IsNil)
	c.Check(p.Name, Equals, "Fred")
	c.Check(p.Addresses, HasLen, 2)

	p, err = sqlcrud.Table[Person](s.db).Order(byID).Limit(5, 1).First(ctx)
	c.Assert(err, IsNil)
	c.Check(p.Name, Equals, "Mark")

	_, err = sqlcrud.Table[Person](s.db).Where(sqlcrud.Eq(personID, 42)).First(ctx)
	c.Assert(errors.Is(err, sqlcrud.ErrNoRows), Equals, true)
}

func (s *PackageSuite) TestUpdateDelete(c *C) {
	s.insertFixtures(c)
	ctx := context.Background()

	n, err := sqlcrud.Table[Person](s.db).
		Where(sqlcrud.Eq(personID, 2)).
		Update(ctx, Person{ID: 2, Name: "Marcus", Age: age(25)})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	n, err = sqlcrud.Table[Person](s.db).
		Include(func(p *Person) any { return &p.Age }).
		Where(sqlcrud.Gt(personID, 0)).
		Update(ctx, Person{Age: age(50)})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))

	people, err := sqlcrud.Table[Person](s.db).Order(byID).All(ctx)
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{
		{ID: 1, Name: "Fred", Age: age(50)},
		{ID: 2, Name: "Marcus", Age: age(50)},
		{ID: 3, Name: "Mary", Age: age(50)},
	})

	n, err = sqlcrud.Table[Address](s.db).Where(sqlcrud.Eq(addressPerID, 1)).Delete(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))
	n, err = sqlcrud.Table[Address](s.db).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	_, err = sqlcrud.Table[Address](s.db).Order(addressIDRef).Delete(ctx)
	c.Assert(sqlcrud.IsGenerationError(err), Equals, true)
}

func addressIDRef(a *Address) any { return addressID(a) }

func (s *PackageSuite) TestPartialIteration(c *C) {
	s.insertFixtures(c)
	rows, err := sqlcrud.Join(sqlcrud.Table[Person](s.db).Order(byID), addresses, personID, addressPerID).
		Select(context.Background())
	c.Assert(err, IsNil)
	c.Assert(rows.Next(), Equals, true)
	var p Person
	c.Assert(rows.Get(&p), IsNil)
	c.Check(p.Name, Equals, "Fred")
	c.Check(s.sqldb.Stats().InUse, Equals, 1)

	c.Assert(rows.Close(), IsNil)
	c.Assert(rows.Close(), IsNil)
	c.Check(rows.Next(), Equals, false)
	c.Check(rows.Err(), IsNil)
}

func (s *PackageSuite) TestRowsSeq(c *C) {
	s.insertFixtures(c)
	rows, err := sqlcrud.Table[Person](s.db).Order(byID).Select(context.Background())
	c.Assert(err, IsNil)
	var names []string
	for p, err := range rows.Seq() {
		c.Assert(err, IsNil)
		names = append(names, p.Name)
		if len(names) == 2 {
			break
		}
	}
	c.Check(names, DeepEquals, []string{"Fred", "Mark"})
}

func (s *PackageSuite) TestRowsGetNil(c *C) {
	s.insertFixtures(c)
	rows, err := sqlcrud.Table[Person](s.db).Select(context.Background())
	c.Assert(err, IsNil)
	defer rows.Close()
	c.Assert(rows.Next(), Equals, true)
	err = rows.Get(nil)
	c.Check(sqlcrud.IsDecodeError(err), Equals, true)
	c.Check(errors.Is(err, sqlcrud.ErrNilDestination), Equals, true)
}

func (s *PackageSuite) TestTransaction(c *C) {
	ctx := context.Background()
	tx, err := s.db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[Person](tx).Insert(ctx, Person{ID: 7, Name: "Ben"})
	c.Assert(err, IsNil)
	n, err := sqlcrud.Table[Person](tx).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
	c.Assert(tx.Rollback(), IsNil)

	n, err = sqlcrud.Table[Person](s.db).Count(ctx)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))

	tx, err = s.db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[Address](tx).Insert(ctx, Address{ID: 1, PersonID: 7, Street: "Elm Row"})
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[Person](tx).Insert(ctx, Person{ID: 7, Name: "Ben"})
	c.Assert(err, IsNil)
	people, err := sqlcrud.Join(sqlcrud.Table[Person](tx), addresses, personID, addressPerID).All(ctx)
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 1)
	c.Check(people[0].Addresses, HasLen, 1)
	c.Assert(tx.Commit(), IsNil)
	c.Check(tx.Commit(), Equals, sqlcrud.ErrTXDone)

	_, err = sqlcrud.Table[Person](tx).All(ctx)
	c.Check(err, Equals, sqlcrud.ErrTXDone)
}

func (s *PackageSuite) TestTableNaming(c *C) {
	type BookReview struct {
		ID    int    `db:"id"`
		Stars int    `db:"stars"`
		Body  string `db:"body"`
	}
	ctx := context.Background()
	db := sqlcrud.NewDB(s.sqldb, sqlcrud.WithTableNaming(sqlcrud.SnakeCasePlural))
	c.Assert(sqlcrud.CreateTable[BookReview](ctx, db, sqlcrud.DropTable|sqlcrud.CreateIfNotExists), IsNil)
	_, err := sqlcrud.Table[BookReview](db).Insert(ctx, BookReview{ID: 1, Stars: 5, Body: "Great"})
	c.Assert(err, IsNil)

	var n int
	c.Assert(s.sqldb.QueryRow(`SELECT COUNT(*) FROM book_reviews`).Scan(&n), IsNil)
	c.Check(n, Equals, 1)

	// Explicit table names are kept.
	_, err = sqlcrud.Table[PersonTag](db).Count(ctx)
	c.Assert(err, IsNil)

	c.Check(sqlcrud.SnakeCase("PersonTag"), Equals, "person_tag")
}

func (s *PackageSuite) TestErrors(c *C) {
	ctx := context.Background()

	// A field of a table not in the query.
	_, err := sqlcrud.Table[Person](s.db).Where(sqlcrud.Eq(addressID, 1)).All(ctx)
	c.Check(sqlcrud.IsGenerationError(err), Equals, true)

	// A table missing from the database.
	type Missing struct {
		ID int `db:"id"`
	}
	_, err = sqlcrud.Table[Missing](s.db).All(ctx)
	c.Assert(err, ErrorMatches, "cannot execute query: .*no such table.*")
	c.Check(sqlcrud.IsExecutionError(err), Equals, true)
	var ee *sqlcrud.ExecutionError
	c.Check(errors.As(err, &ee), Equals, true)

	// A field pointer that does not point into the model.
	var outside int
	_, err = sqlcrud.Table[Person](s.db).Where(sqlcrud.Eq(func(*Person) *int { return &outside }, 1)).All(ctx)
	c.Check(sqlcrud.IsGenerationError(err), Equals, true)
}

type Owner struct {
	ID      int `db:"id"`
	Colours []Colour
}

type Colour struct {
	ID    int    `db:"id"`
	Shade string `db:"shade"`
}

type OwnerColour struct {
	OwnerID int    `db:"owner_id"`
	Shade   string `db:"shade"`
}

func (s *PackageSuite) TestJoinPivotSharedChildKey(c *C) {
	ctx := context.Background()
	c.Assert(sqlcrud.CreateTable[Owner](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateTable[Colour](ctx, s.db, sqlcrud.DropTable), IsNil)
	c.Assert(sqlcrud.CreateTable[OwnerColour](ctx, s.db, sqlcrud.DropTable), IsNil)
	_, err := sqlcrud.Table[Owner](s.db).Insert(ctx, Owner{ID: 1}, Owner{ID: 2})
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[Colour](s.db).Insert(ctx,
		Colour{ID: 1, Shade: "red"},
		Colour{ID: 2, Shade: "red"},
		Colour{ID: 3, Shade: "blue"},
	)
	c.Assert(err, IsNil)
	_, err = sqlcrud.Table[OwnerColour](s.db).Insert(ctx, OwnerColour{OwnerID: 1, Shade: "red"})
	c.Assert(err, IsNil)

	owners, err := sqlcrud.JoinPivot(
		sqlcrud.Table[Owner](s.db).Order(func(o *Owner) any { return &o.ID }),
		func(o *Owner) *[]Colour { return &o.Colours },
		func(o *Owner) *int { return &o.ID },
		func(oc *OwnerColour) *int { return &oc.OwnerID },
		func(oc *OwnerColour) *string { return &oc.Shade },
		func(c *Colour) *string { return &c.Shade },
	).Order(func(c *Colour) any { return &c.ID }).All(ctx)
	c.Assert(err, IsNil)
	c.Assert(owners, HasLen, 2)
	// Every colour of the shade is related, not only the first one read.
	c.Check(owners[0].Colours, DeepEquals, []Colour{{ID: 1, Shade: "red"}, {ID: 2, Shade: "red"}})
	c.Check(owners[1].Colours, DeepEquals, []Colour{})
}

func (s *PackageSuite) TestJoinInterfaceKeyFails(c *C) {
	type Part struct {
		DocKey any `db:"doc_key"`
	}
	type Document struct {
		Key   any `db:"key"`
		Parts []Part
	}
	_, err := sqlcrud.Join(
		sqlcrud.Table[Document](s.db),
		func(d *Document) *[]Part { return &d.Parts },
		func(d *Document) *any { return &d.Key },
		func(p *Part) *any { return &p.DocKey },
	).All(context.Background())
	c.Assert(err, ErrorMatches, `cannot generate query: join key "Key" of "Document" has type interface {}, .*`)
	c.Check(sqlcrud.IsGenerationError(err), Equals, true)
}

func (s *PackageSuite) TestCountWithColumnFilterFails(c *C) {
	s.insertFixtures(c)
	_, err := sqlcrud.Table[Person](s.db).Include(byID).Count(context.Background())
	c.Assert(err, ErrorMatches, "cannot generate query: column filters are not supported with count")

	// Orderings are ignored.
	n, err := sqlcrud.Table[Person](s.db).OrderDesc(byID).Count(context.Background())
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(3))
}
