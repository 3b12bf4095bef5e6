/*
sqlcrud builds and runs SQL queries over tagged Go structs, reading nested one-to-many and many-to-many relations back into the structs.

A query is a chain of typed operations starting from a table. The chain is turned into one SQL statement per table it names, the statements are run, and the flat rows are stitched back into values of the root type.

# Models

A model is a struct whose columns are the fields with a `db` tag. Untagged fields are not columns, they receive the rows of joined tables:

	type Person struct {
		ID        int    `db:"id"`
		Name      string `db:"name"`
		Addresses []Address
		Tags      []Tag
	}

	type Address struct {
		ID       int    `db:"id"`
		PersonID int    `db:"person_id"`
		Street   string `db:"street"`
	}

The table of a model is named after its type, unless the type has a TableName method or the DB was opened with [WithTableNaming].

# Fields

Fields are named in queries by functions returning a pointer to them. The function is called once on a zero value to find the field, it must not do anything else:

	sqlcrud.Eq(func(p *Person) *string { return &p.Name }, "Fred")

# Queries

	db := sqlcrud.NewDB(sqldb)
	people, err := sqlcrud.Join(
		sqlcrud.Table[Person](db).
			Where(sqlcrud.Gt(func(p *Person) *int { return &p.ID }, 10)).
			Order(func(p *Person) any { return &p.Name }),
		func(p *Person) *[]Address { return &p.Addresses },
		func(p *Person) *int { return &p.ID },
		func(a *Address) *int { return &a.PersonID },
	).All(ctx)

Where, Order, Limit, Include and Exclude apply to the table named last in the chain: the root table, or the table of the last join. All joins relate to the root table.

The query above runs two statements. The addresses of the matched people are selected first, with the filter of the root table applied in a sub-query:

	SELECT t1.id, t1.person_id, t1.street FROM Address AS t1
	WHERE t1.person_id IN (SELECT t0.id FROM Person AS t0 WHERE (t0.id > ?))

The people are then read one by one, each getting the addresses whose person_id equals its id. A person without addresses gets an empty, non-nil slice.

Many-to-many relations are read through a pivot table with [JoinPivot].

# Errors

Chains that cannot be turned into SQL return a [GenerationError] before anything is run. Failures of the database are returned as an [ExecutionError] wrapping the error of the driver, and rows that cannot be read into a model as a [DecodeError].
*/
package sqlcrud
