package catalog

// PlatformSchema holds tables shared by every tenant (the organizations registry).
const PlatformSchema = "public"

var (
	SubmissionStatuses = []string{"STARTED", "COMPLETED", "SUBMITTED", "REVIEWED"}
	OrganizationTypes  = []string{"Private", "Civil", "Public", "NGO"}
)

var tenantCatalog = MustNew(
	model("departments", "Department",
		col("name", String).notNull(),
		col("form_fields", JSON).notNull(),
	).relate(
		hasMany("staff", "staffs", "department_id"),
		hasMany("groups", "department_groups", "department_id"),
	),

	model("organization_branches", "Organization branch",
		organizationID().notNull().onDelete("CASCADE"),
		col("name", String).notNull(),
		col("location", JSON),
	).relate(
		hasMany("staff", "staffs", "branch_id"),
	),

	model("staffs", "Staff",
		organizationID(),
		col("department_id", UUID).references("departments"),
		col("user_id", UUID),
		col("branch_id", UUID).references("organization_branches"),
		col("form_fields", JSON).notNull(),
	).relate(
		belongsTo("department", "departments", "department_id"),
		belongsTo("branch", "organization_branches", "branch_id"),
		hasMany("appraisal_submissions", "appraisal_submissions", "staff_id"),
	),

	model("department_groups", "Department group",
		col("department_id", UUID).references("departments"),
		col("name", String),
	).relate(
		belongsTo("department", "departments", "department_id"),
		hasMany("appraisal_inputs", "appraisal_inputs", "department_group_id"),
	),

	model("roles", "Role",
		col("name", String).length(255).unique(),
	).relate(
		manyToMany("permissions", "permissions", "role_permissions", "role_id", "permission_id"),
	),

	model("permissions", "Permission",
		col("name", String).length(255).unique(),
	).relate(
		manyToMany("roles", "roles", "role_permissions", "permission_id", "role_id"),
	),

	link("role_permissions", "Role permission",
		col("role_id", UUID).references("roles"),
		col("permission_id", UUID).references("permissions"),
	),

	model("appraisal_templates", "Appraisal template",
		col("name", String).notNull(),
		col("description", String),
		col("org_type", Enum).values(OrganizationTypes...),
	).relate(
		hasMany("inputs", "appraisal_inputs", "appraisal_template_id"),
	),

	model("appraisals", "Appraisal",
		organizationID(),
		col("name", String).notNull(),
		col("year", Int),
		col("description", String),
		col("cycle", String),
		col("period_from", Date),
		col("period_to", Date),
		col("form_fields", JSON),
	).relate(
		hasMany("inputs", "appraisal_inputs", "appraisal_id"),
		hasMany("submissions", "appraisal_submissions", "appraisal_id"),
	),

	model("appraisal_inputs", "Appraisal input",
		organizationID(),
		col("appraisal_id", UUID).references("appraisals"),
		col("appraisal_template_id", UUID).references("appraisal_templates"),
		col("department_group_id", UUID).references("department_groups"),
		col("department_ids", JSON),
		col("form_fields", JSON).notNull(),
		col("submitted", Bool).def("false"),
		col("completed", Bool).def("false"),
		col("is_global", Bool).def("false"),
		col("is_active", Bool).def("false"),
	).relate(
		belongsTo("appraisal", "appraisals", "appraisal_id"),
		belongsTo("appraisal_template", "appraisal_templates", "appraisal_template_id"),
		belongsTo("department_group", "department_groups", "department_group_id"),
		hasMany("submissions", "appraisal_submissions", "appraisal_input_id"),
	),

	model("appraisal_submissions", "Appraisal submission",
		col("appraisal_input_id", UUID).notNull().references("appraisal_inputs"),
		col("appraisal_id", UUID).notNull().references("appraisals"),
		col("staff_id", UUID).references("staffs"),
		col("data", JSON).notNull(),
		col("status", Enum).values(SubmissionStatuses...).def("'STARTED'"),
		col("started_at", Timestamp).def("now()"),
		col("completed_at", Timestamp),
		col("completed", Bool).def("false"),
		col("submitted_at", Timestamp),
		col("submitted", Bool).def("false"),
		col("reviewed_at", Timestamp),
	).relate(
		belongsTo("appraisal_input", "appraisal_inputs", "appraisal_input_id"),
		belongsTo("appraisal", "appraisals", "appraisal_id"),
		belongsTo("staff", "staffs", "staff_id"),
		manyToMany("comments", "appraisal_comments", "appraisal_submission_comments", "submission_id", "comment_id"),
	),

	model("appraisal_comments", "Appraisal comment",
		organizationID(),
		col("content", String).notNull(),
		col("commenter_id", UUID).references("staffs"),
	).relate(
		belongsTo("commenter", "staffs", "commenter_id"),
		manyToMany("submissions", "appraisal_submissions", "appraisal_submission_comments", "comment_id", "submission_id"),
	),

	link("appraisal_submission_comments", "Appraisal submission comment",
		col("comment_id", UUID).references("appraisal_comments"),
		col("submission_id", UUID).references("appraisal_submissions"),
	),

	model("form_field_templates", "Form field template",
		organizationID(),
		col("model_name", String),
		col("description", String),
		col("fields", JSON),
	).relate(),

	model("organization_settings", "Organization settings",
		organizationID(),
		col("logos", JSON),
		col("color_scheme", JSON),
		col("extra_attributes", JSON),
	).relate(),
)

// Tenant returns the descriptors of every table created inside a tenant schema.
func Tenant() *Catalog {
	return tenantCatalog
}

// model declares an entity carrying the common audit columns.
func model(name, label string, cols ...colBuilder) entityBuilder {
	base := []colBuilder{
		col("id", UUID).notNull().def("gen_random_uuid()"),
		col("created_date", Timestamp).def("now()"),
		col("updated_date", Timestamp).def("now()"),
		col("is_deleted", Bool).def("false"),
		col("deleted_at", Timestamp),
	}
	return entityBuilder{Entity: Entity{
		Name:       name,
		Label:      label,
		Columns:    build(append(base, cols...)),
		PrimaryKey: []string{"id"},
	}}
}

// link declares an association table keyed by both of its columns.
func link(name, label string, left, right colBuilder) Entity {
	cols := build([]colBuilder{left.notNull(), right.notNull()})
	return Entity{
		Name:       name,
		Label:      label,
		Columns:    cols,
		PrimaryKey: []string{cols[0].Name, cols[1].Name},
	}
}

type entityBuilder struct{ Entity }

func (b entityBuilder) relate(rels ...Relation) Entity {
	b.Relations = append(b.Relations, rels...)
	return b.Entity
}

func hasMany(name, target, foreignKey string) Relation {
	return Relation{Name: name, Target: target, LocalColumn: "id", RemoteColumn: foreignKey}
}

func belongsTo(name, target, foreignKey string) Relation {
	return Relation{Name: name, Target: target, LocalColumn: foreignKey, RemoteColumn: "id"}
}

func manyToMany(name, target, through, throughLocal, throughRemote string) Relation {
	return Relation{
		Name:          name,
		Target:        target,
		LocalColumn:   "id",
		RemoteColumn:  "id",
		Through:       through,
		ThroughLocal:  throughLocal,
		ThroughRemote: throughRemote,
	}
}

type colBuilder struct{ Column }

func col(name string, t ColumnType) colBuilder {
	return colBuilder{Column{Name: name, Type: t}}
}

func organizationID() colBuilder {
	return colBuilder{Column{
		Name:       "organization_id",
		Type:       UUID,
		References: &Reference{Entity: "organizations", Schema: PlatformSchema},
	}}
}

func (c colBuilder) notNull() colBuilder { c.NotNull = true; return c }

func (c colBuilder) unique() colBuilder { c.Unique = true; return c }

func (c colBuilder) length(n int) colBuilder { c.Length = n; return c }

func (c colBuilder) def(expr string) colBuilder { c.Default = expr; return c }

func (c colBuilder) values(v ...string) colBuilder { c.Values = v; return c }

func (c colBuilder) references(entity string) colBuilder {
	c.Column.References = &Reference{Entity: entity}
	return c
}

func (c colBuilder) onDelete(action string) colBuilder {
	if c.Column.References != nil {
		ref := *c.Column.References
		ref.OnDelete = action
		c.Column.References = &ref
	}
	return c
}

func build(cols []colBuilder) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Column)
	}
	return out
}
