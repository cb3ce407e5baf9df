package dashboard

// Dashboard permission codes gating protected operations. Handlers declare
// one of these together with a minimum level; an empty declaration denies.
const (
	PermAdminRoles = "admin.roles"

	PermContentGrade     = "content.grade"
	PermContentSubject   = "content.subject"
	PermContentCourse    = "content.course"
	PermContentPlacement = "content.placement"
	PermContentModule    = "content.module"
	PermContentLesson    = "content.lesson"
	PermContentBlock     = "content.block"
	PermContentPublish   = "content.publish"

	PermUsersView         = "users.view"
	PermRelationshipsView = "relationships.view"
	PermEnrollmentsManage = "enrollments.manage"

	PermPurchasesView   = "purchases.view"
	PermPurchasesRefund = "purchases.refund"
)
